package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Property is the local rental unit that integrations attach to.
type Property struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Address        string    `json:"address" db:"address"`
	City           string    `json:"city" db:"city"`
	BasePrice      float64   `json:"base_price" db:"base_price"`
	Currency       string    `json:"currency" db:"currency"`
	DefaultMinStay int       `json:"default_min_stay" db:"default_min_stay"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Integration links one local property to one remote marketplace listing.
// Access and refresh tokens are stored AES-GCM sealed; TokenExpiresAt is the
// plaintext expiry used for the refresh decision.
type Integration struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	PropertyID      uuid.UUID  `json:"property_id" db:"property_id"`
	Marketplace     string     `json:"marketplace" db:"marketplace"` // config key, e.g. "avitex"
	RemoteAccountID string     `json:"remote_account_id" db:"remote_account_id"`
	RemoteListingID string     `json:"remote_listing_id" db:"remote_listing_id"`
	MarkupPercent   *float64   `json:"markup_percent" db:"markup_percent"`
	MarkupFlat      *float64   `json:"markup_flat" db:"markup_flat"`
	AccessToken     []byte     `json:"-" db:"access_token"`
	RefreshToken    []byte     `json:"-" db:"refresh_token"`
	TokenExpiresAt  *time.Time `json:"token_expires_at" db:"token_expires_at"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastSyncAt      *time.Time `json:"last_sync_at" db:"last_sync_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// RemotePrice applies the integration markup to a local nightly price.
// Percent markup wins when both are set; flat is added as-is.
func (i *Integration) RemotePrice(local float64) float64 {
	if i.MarkupPercent != nil && *i.MarkupPercent != 0 {
		return float64(int64(local*(1+*i.MarkupPercent/100) + 0.5))
	}
	if i.MarkupFlat != nil {
		return local + *i.MarkupFlat
	}
	return local
}

// RateOverride is a per-date price/min-stay override for a property.
// Read-only input to the projector.
type RateOverride struct {
	ID         int64     `json:"id" db:"id"`
	PropertyID uuid.UUID `json:"property_id" db:"property_id"`
	Date       time.Time `json:"date" db:"date"`
	Price      float64   `json:"price" db:"price"`
	MinStay    int       `json:"min_stay" db:"min_stay"`
}

// Booking is a local reservation. Bookings pulled from a marketplace carry
// the remote booking id as their natural idempotency key: at most one local
// row exists per (marketplace, remote id).
type Booking struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	PropertyID uuid.UUID  `json:"property_id" db:"property_id"`
	CheckIn    time.Time  `json:"check_in" db:"check_in"`
	CheckOut   time.Time  `json:"check_out" db:"check_out"`
	GuestName  string     `json:"guest_name" db:"guest_name"`
	GuestPhone string     `json:"guest_phone" db:"guest_phone"`
	GuestEmail string     `json:"guest_email" db:"guest_email"`
	TotalPrice float64    `json:"total_price" db:"total_price"`
	Currency   string     `json:"currency" db:"currency"`
	Status     string     `json:"status" db:"status"` // confirmed, pending, cancelled
	Source     string     `json:"source" db:"source"` // manual or marketplace name
	RemoteID   *string    `json:"remote_id" db:"remote_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at" db:"deleted_at"`
}

// OperationResult is one per-operation outcome within a sync attempt.
// Partial failure is first-class: each failed operation is recorded here and
// the attempt continues.
type OperationResult struct {
	Operation  string          `json:"operation"`
	StatusCode int             `json:"statusCode"`
	ErrorCode  string          `json:"errorCode,omitempty"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// SyncAttempt is one append-only audit row per reconciliation attempt.
type SyncAttempt struct {
	ID            int64           `json:"id" db:"id"`
	IntegrationID uuid.UUID       `json:"integration_id" db:"integration_id"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at" db:"finished_at"`
	Success       bool            `json:"success" db:"success"`
	Synced        bool            `json:"synced" db:"synced"`
	Trigger       string          `json:"trigger" db:"trigger"` // manual, scheduled, queue, booking_delete
	Errors        json.RawMessage `json:"errors" db:"errors"`   // []OperationResult
	Pulled        int             `json:"pulled" db:"pulled"`
	Created       int             `json:"created" db:"created"`
	Updated       int             `json:"updated" db:"updated"`
}

// SyncTask is a deferred re-sync request. Tasks are enqueued when an
// immediate attempt fails fatally and are drained by the queue worker with
// bounded retries. Rows cascade-delete with their integration.
type SyncTask struct {
	ID               int64      `json:"id" db:"id"`
	IntegrationID    uuid.UUID  `json:"integration_id" db:"integration_id"`
	ExcludeBookingID *uuid.UUID `json:"exclude_booking_id" db:"exclude_booking_id"`
	Status           string     `json:"status" db:"status"` // pending, in_progress, completed, failed
	Attempts         int        `json:"attempts" db:"attempts"`
	MaxAttempts      int        `json:"max_attempts" db:"max_attempts"`
	NextRetryAt      time.Time  `json:"next_retry_at" db:"next_retry_at"`
	LastError        string     `json:"last_error" db:"last_error"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Booking status
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusPending   = "pending"
	BookingStatusCancelled = "cancelled"
)

// Booking source
const (
	BookingSourceManual = "manual"
)

// Sync task status
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Sync triggers
const (
	TriggerManual        = "manual"
	TriggerScheduled     = "scheduled"
	TriggerQueue         = "queue"
	TriggerBookingDelete = "booking_delete"
)

// Reconciler operation names, in execution order.
const (
	OpToken      = "token"
	OpPrices     = "push_prices"
	OpBaseParams = "push_base_params"
	OpOccupancy  = "push_occupancy"
	OpPull       = "pull_bookings"
)
