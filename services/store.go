package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"staysync/models"
)

// ErrNotFound marks a lookup whose subject does not exist. HTTP handlers
// translate it to a 404.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface the sync services need. Implemented by
// storage.PostgresStore; tests substitute an in-memory fake.
type Store interface {
	GetPropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error)

	GetIntegrationByID(ctx context.Context, id uuid.UUID) (*models.Integration, error)
	GetIntegrationByProperty(ctx context.Context, propertyID uuid.UUID, marketplace string) (*models.Integration, error)
	UpsertIntegration(ctx context.Context, i *models.Integration) error
	UpdateIntegrationTokens(ctx context.Context, id uuid.UUID, access, refresh []byte, expiresAt time.Time, prevExpiry *time.Time) (bool, error)
	TouchIntegrationSync(ctx context.Context, id uuid.UUID, at time.Time) error

	GetFutureRateOverrides(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.RateOverride, error)

	GetBookingBySourceAndRemoteID(ctx context.Context, source, remoteID string) (*models.Booking, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	UpdateBooking(ctx context.Context, b *models.Booking) error
	ListConfirmedFutureBookings(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.Booking, error)

	CreateSyncAttempt(ctx context.Context, a *models.SyncAttempt) error
}
