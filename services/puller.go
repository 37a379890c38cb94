package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"staysync/marketplace"
	"staysync/models"
)

// PullStats counts what happened to each remote booking during a pull.
type PullStats struct {
	Pulled  int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// Puller fetches the marketplace's bookings for a listing over the pull
// window and upserts them locally, keyed by the remote booking id. Re-running
// against an unchanged remote set is a no-op.
type Puller struct {
	store      Store
	windowDays int
	now        func() time.Time
}

func NewPuller(store Store, windowDays int) *Puller {
	return &Puller{store: store, windowDays: windowDays, now: time.Now}
}

func (p *Puller) Pull(ctx context.Context, client *marketplace.Client, token string, integ *models.Integration) (*PullStats, error) {
	today := truncateDay(p.now())
	payload, err := client.PullBookings(ctx, token, integ.RemoteAccountID, integ.RemoteListingID, today, today.AddDate(0, 0, p.windowDays), true)
	if err != nil {
		return nil, err
	}

	remote, err := marketplace.ParseBookingsPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("parse bookings: %w", err)
	}

	stats := &PullStats{Pulled: len(remote)}
	for _, rb := range remote {
		if err := p.upsert(ctx, integ, rb, stats); err != nil {
			log.Printf("Warning: booking %s from %s: %v", rb.ID, integ.Marketplace, err)
			stats.Errors++
		}
	}
	return stats, nil
}

func (p *Puller) upsert(ctx context.Context, integ *models.Integration, rb marketplace.RemoteBooking, stats *PullStats) error {
	existing, err := p.store.GetBookingBySourceAndRemoteID(ctx, integ.Marketplace, rb.ID)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	if existing == nil {
		now := p.now()
		remoteID := rb.ID
		booking := &models.Booking{
			ID:         uuid.New(),
			PropertyID: integ.PropertyID,
			CheckIn:    rb.CheckIn,
			CheckOut:   rb.CheckOut,
			GuestName:  rb.GuestName,
			GuestPhone: rb.GuestPhone,
			GuestEmail: rb.GuestEmail,
			TotalPrice: rb.TotalPrice,
			Currency:   rb.Currency,
			Status:     rb.Status,
			Source:     integ.Marketplace,
			RemoteID:   &remoteID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := p.store.CreateBooking(ctx, booking); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		stats.Created++
		return nil
	}

	if bookingUnchanged(existing, rb) {
		stats.Skipped++
		return nil
	}

	existing.CheckIn = rb.CheckIn
	existing.CheckOut = rb.CheckOut
	existing.GuestName = rb.GuestName
	existing.GuestPhone = rb.GuestPhone
	existing.GuestEmail = rb.GuestEmail
	existing.TotalPrice = rb.TotalPrice
	existing.Currency = rb.Currency
	existing.Status = rb.Status
	if err := p.store.UpdateBooking(ctx, existing); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	stats.Updated++
	return nil
}

func bookingUnchanged(b *models.Booking, rb marketplace.RemoteBooking) bool {
	return b.CheckIn.Equal(rb.CheckIn) &&
		b.CheckOut.Equal(rb.CheckOut) &&
		b.GuestName == rb.GuestName &&
		b.GuestPhone == rb.GuestPhone &&
		b.GuestEmail == rb.GuestEmail &&
		b.TotalPrice == rb.TotalPrice &&
		b.Currency == rb.Currency &&
		b.Status == rb.Status
}
