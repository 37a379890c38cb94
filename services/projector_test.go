package services

import (
	"testing"
	"time"

	"staysync/marketplace"
	"staysync/models"
)

func day(s string) time.Time {
	t, err := time.Parse(marketplace.WireDate, s)
	if err != nil {
		panic(err)
	}
	return t
}

func floatPtr(f float64) *float64 { return &f }

func TestBuildPriceIntervals_NoOverrides(t *testing.T) {
	integ := &models.Integration{}
	prop := &models.Property{BasePrice: 2500, DefaultMinStay: 2}

	intervals := BuildPriceIntervals(integ, prop, nil, day("2026-08-24"), 90)
	if len(intervals) != 1 {
		t.Fatalf("expected single synthetic run, got %d", len(intervals))
	}

	iv := intervals[0]
	if iv.DateFrom != "2026-08-24" || iv.DateTo != "2026-11-21" {
		t.Fatalf("unexpected run %s..%s", iv.DateFrom, iv.DateTo)
	}
	if iv.NightPrice != 2500 {
		t.Fatalf("expected base price 2500, got %d", iv.NightPrice)
	}
	if iv.MinStay != 2 {
		t.Fatalf("expected default min stay 2, got %d", iv.MinStay)
	}
}

func TestBuildPriceIntervals_Coalescing(t *testing.T) {
	integ := &models.Integration{}
	prop := &models.Property{BasePrice: 1000, DefaultMinStay: 1}

	// two equal days, a price change, a gap, then the same pair again:
	// the gap must split the run even though price and min stay match
	overrides := []models.RateOverride{
		{Date: day("2026-09-01"), Price: 1500, MinStay: 2},
		{Date: day("2026-09-02"), Price: 1500, MinStay: 2},
		{Date: day("2026-09-03"), Price: 1800, MinStay: 2},
		{Date: day("2026-09-05"), Price: 1800, MinStay: 2},
	}

	intervals := BuildPriceIntervals(integ, prop, overrides, day("2026-08-24"), 90)
	if len(intervals) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(intervals), intervals)
	}

	want := []marketplace.PriceInterval{
		{DateFrom: "2026-09-01", DateTo: "2026-09-02", NightPrice: 1500, MinStay: 2},
		{DateFrom: "2026-09-03", DateTo: "2026-09-03", NightPrice: 1800, MinStay: 2},
		{DateFrom: "2026-09-05", DateTo: "2026-09-05", NightPrice: 1800, MinStay: 2},
	}
	for i, w := range want {
		if intervals[i] != w {
			t.Errorf("run %d: got %+v, want %+v", i, intervals[i], w)
		}
	}
}

func TestBuildPriceIntervals_UnsortedInput(t *testing.T) {
	integ := &models.Integration{}
	prop := &models.Property{DefaultMinStay: 1}

	overrides := []models.RateOverride{
		{Date: day("2026-09-02"), Price: 1500, MinStay: 1},
		{Date: day("2026-09-01"), Price: 1500, MinStay: 1},
	}

	intervals := BuildPriceIntervals(integ, prop, overrides, day("2026-08-24"), 90)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 run from unsorted contiguous input, got %d", len(intervals))
	}
	if intervals[0].DateFrom != "2026-09-01" || intervals[0].DateTo != "2026-09-02" {
		t.Fatalf("unexpected run %s..%s", intervals[0].DateFrom, intervals[0].DateTo)
	}
}

func TestBuildPriceIntervals_MinStayFallback(t *testing.T) {
	integ := &models.Integration{}
	prop := &models.Property{DefaultMinStay: 3}

	overrides := []models.RateOverride{
		{Date: day("2026-09-01"), Price: 1500, MinStay: 0},
		{Date: day("2026-09-02"), Price: 1500, MinStay: 3},
	}

	intervals := BuildPriceIntervals(integ, prop, overrides, day("2026-08-24"), 90)
	if len(intervals) != 1 {
		t.Fatalf("zero min stay should fall back to property default and coalesce, got %d runs", len(intervals))
	}
	if intervals[0].MinStay != 3 {
		t.Fatalf("expected min stay 3, got %d", intervals[0].MinStay)
	}
}

func TestBuildPriceIntervals_MarkupSplitsRuns(t *testing.T) {
	integ := &models.Integration{MarkupPercent: floatPtr(10)}
	prop := &models.Property{DefaultMinStay: 1}

	overrides := []models.RateOverride{
		{Date: day("2026-09-01"), Price: 1000, MinStay: 1},
		{Date: day("2026-09-02"), Price: 995, MinStay: 1},
	}

	intervals := BuildPriceIntervals(integ, prop, overrides, day("2026-08-24"), 90)
	if len(intervals) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(intervals))
	}
	if intervals[0].NightPrice != 1100 {
		t.Fatalf("expected 10%% markup 1100, got %d", intervals[0].NightPrice)
	}
	// 995 * 1.1 = 1094.5, rounds up
	if intervals[1].NightPrice != 1095 {
		t.Fatalf("expected rounded markup 1095, got %d", intervals[1].NightPrice)
	}
}

func TestRemotePrice(t *testing.T) {
	percent := &models.Integration{MarkupPercent: floatPtr(15), MarkupFlat: floatPtr(500)}
	if got := percent.RemotePrice(1000); got != 1150 {
		t.Fatalf("percent markup should win over flat: got %f", got)
	}

	flat := &models.Integration{MarkupFlat: floatPtr(500)}
	if got := flat.RemotePrice(1000); got != 1500 {
		t.Fatalf("flat markup: got %f", got)
	}

	none := &models.Integration{}
	if got := none.RemotePrice(1000); got != 1000 {
		t.Fatalf("no markup: got %f", got)
	}
}
