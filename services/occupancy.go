package services

import (
	"github.com/google/uuid"
	"staysync/marketplace"
	"staysync/models"
)

// BuildClosedIntervals maps confirmed bookings to closed [check_in,
// check_out) intervals, optionally leaving out one booking id. The returned
// slice is never nil: an empty set is a valid payload that reopens every
// remote date.
func BuildClosedIntervals(bookings []models.Booking, exclude *uuid.UUID) []marketplace.ClosedInterval {
	intervals := make([]marketplace.ClosedInterval, 0, len(bookings))
	for _, b := range bookings {
		if exclude != nil && b.ID == *exclude {
			continue
		}
		intervals = append(intervals, marketplace.ClosedInterval{
			DateFrom: b.CheckIn.Format(marketplace.WireDate),
			DateTo:   b.CheckOut.Format(marketplace.WireDate),
		})
	}
	return intervals
}
