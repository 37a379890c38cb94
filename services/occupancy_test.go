package services

import (
	"testing"

	"github.com/google/uuid"
	"staysync/models"
)

func TestBuildClosedIntervals(t *testing.T) {
	b1 := models.Booking{ID: uuid.New(), CheckIn: day("2026-09-01"), CheckOut: day("2026-09-05")}
	b2 := models.Booking{ID: uuid.New(), CheckIn: day("2026-09-10"), CheckOut: day("2026-09-12")}
	bookings := []models.Booking{b1, b2}

	intervals := BuildClosedIntervals(bookings, nil)
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(intervals))
	}
	if intervals[0].DateFrom != "2026-09-01" || intervals[0].DateTo != "2026-09-05" {
		t.Fatalf("unexpected interval %+v", intervals[0])
	}
}

func TestBuildClosedIntervals_Exclusion(t *testing.T) {
	b1 := models.Booking{ID: uuid.New(), CheckIn: day("2026-09-01"), CheckOut: day("2026-09-05")}
	b2 := models.Booking{ID: uuid.New(), CheckIn: day("2026-09-10"), CheckOut: day("2026-09-12")}
	bookings := []models.Booking{b1, b2}

	intervals := BuildClosedIntervals(bookings, &b1.ID)
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval after exclusion, got %d", len(intervals))
	}
	if intervals[0].DateFrom != "2026-09-10" {
		t.Fatalf("wrong booking excluded: %+v", intervals[0])
	}
}

func TestBuildClosedIntervals_EmptyAfterExclusionIsNotNil(t *testing.T) {
	b1 := models.Booking{ID: uuid.New(), CheckIn: day("2026-09-01"), CheckOut: day("2026-09-05")}

	intervals := BuildClosedIntervals([]models.Booking{b1}, &b1.ID)
	if intervals == nil {
		t.Fatal("empty result must be a non-nil slice: it is a meaningful payload")
	}
	if len(intervals) != 0 {
		t.Fatalf("expected empty set, got %d", len(intervals))
	}
}
