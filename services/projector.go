package services

import (
	"sort"
	"time"

	"staysync/marketplace"
	"staysync/models"
)

// BuildPriceIntervals coalesces per-date rate overrides into the minimal set
// of contiguous runs with a constant (remote price, min stay) pair. Dates are
// inclusive on both ends. With no overrides a single synthetic run of
// windowDays at the base price is emitted.
func BuildPriceIntervals(integ *models.Integration, prop *models.Property, overrides []models.RateOverride, today time.Time, windowDays int) []marketplace.PriceInterval {
	today = truncateDay(today)

	if len(overrides) == 0 {
		return []marketplace.PriceInterval{{
			DateFrom:   today.Format(marketplace.WireDate),
			DateTo:     today.AddDate(0, 0, windowDays-1).Format(marketplace.WireDate),
			NightPrice: int64(integ.RemotePrice(prop.BasePrice)),
			MinStay:    prop.DefaultMinStay,
		}}
	}

	sorted := make([]models.RateOverride, len(overrides))
	copy(sorted, overrides)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var intervals []marketplace.PriceInterval
	var runStart, runEnd time.Time
	var runPrice int64
	var runMinStay int

	flush := func() {
		intervals = append(intervals, marketplace.PriceInterval{
			DateFrom:   runStart.Format(marketplace.WireDate),
			DateTo:     runEnd.Format(marketplace.WireDate),
			NightPrice: runPrice,
			MinStay:    runMinStay,
		})
	}

	for i, o := range sorted {
		date := truncateDay(o.Date)
		price := int64(integ.RemotePrice(o.Price))
		minStay := o.MinStay
		if minStay <= 0 {
			minStay = prop.DefaultMinStay
		}

		if i == 0 {
			runStart, runEnd, runPrice, runMinStay = date, date, price, minStay
			continue
		}

		contiguous := date.Equal(runEnd.AddDate(0, 0, 1))
		if contiguous && price == runPrice && minStay == runMinStay {
			runEnd = date
			continue
		}

		flush()
		runStart, runEnd, runPrice, runMinStay = date, date, price, minStay
	}
	flush()

	return intervals
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
