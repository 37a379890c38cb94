package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"staysync/config"
	"staysync/marketplace"
	"staysync/models"
)

// Result is the structured outcome of one reconciliation attempt. Operation
// failures never abort the attempt; they accumulate here and the caller
// renders them.
type Result struct {
	Success bool                     `json:"success"`
	Synced  bool                     `json:"synced"`
	Errors  []models.OperationResult `json:"errors,omitempty"`
}

// Options modify a single sync invocation.
type Options struct {
	Trigger          string
	ExcludeBookingID *uuid.UUID
}

// Reconciler brings a property's price, availability and booking state into
// agreement with its remote marketplace listing, and pulls remote bookings
// back. One invocation runs sequentially to completion; all state lives in
// the store.
type Reconciler struct {
	store    Store
	clients  map[string]*marketplace.Client
	guardian *TokenGuardian
	puller   *Puller
	syncCfg  *config.SyncConfig
	now      func() time.Time
}

func NewReconciler(store Store, clients map[string]*marketplace.Client, guardian *TokenGuardian, puller *Puller, syncCfg *config.SyncConfig) *Reconciler {
	return &Reconciler{
		store:    store,
		clients:  clients,
		guardian: guardian,
		puller:   puller,
		syncCfg:  syncCfg,
		now:      time.Now,
	}
}

// Sync runs one reconciliation attempt. The returned error is non-nil only
// for malformed input (unknown integration or marketplace); everything past
// that boundary is reported inside the Result.
func (r *Reconciler) Sync(ctx context.Context, integrationID uuid.UUID, opts Options) (*Result, error) {
	integ, err := r.store.GetIntegrationByID(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	if integ == nil {
		return nil, fmt.Errorf("integration %s: %w", integrationID, ErrNotFound)
	}

	client, ok := r.clients[integ.Marketplace]
	if !ok {
		return nil, fmt.Errorf("no marketplace configured: %s", integ.Marketplace)
	}

	prop, err := r.store.GetPropertyByID(ctx, integ.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	if prop == nil {
		return nil, fmt.Errorf("property %s: %w", integ.PropertyID, ErrNotFound)
	}

	startedAt := r.now()
	result := &Result{}
	var stats *PullStats

	token, err := r.guardian.Ensure(ctx, client, integ)
	if err != nil {
		// Fatal for the whole attempt: nothing can be pushed or pulled.
		result.Errors = append(result.Errors, opFailure(models.OpToken, integ.Marketplace, err))
		r.recordAttempt(ctx, integ, startedAt, opts.Trigger, result, nil)
		return result, nil
	}

	result.Synced = true
	today := truncateDay(r.now())

	// Prices
	overrides, err := r.store.GetFutureRateOverrides(ctx, integ.PropertyID, today)
	if err != nil {
		result.Errors = append(result.Errors, opFailure(models.OpPrices, integ.Marketplace, err))
	} else {
		intervals := BuildPriceIntervals(integ, prop, overrides, today, r.syncCfg.PriceWindowDays)
		if err := client.PushPrices(ctx, token, integ.RemoteAccountID, integ.RemoteListingID, intervals); err != nil {
			result.Errors = append(result.Errors, opFailure(models.OpPrices, integ.Marketplace, err))
		}
	}

	// Base parameters
	base := marketplace.BaseParams{
		NightPrice: int64(integ.RemotePrice(prop.BasePrice)),
		MinStay:    prop.DefaultMinStay,
	}
	if err := client.PushBaseParams(ctx, token, integ.RemoteAccountID, integ.RemoteListingID, base); err != nil {
		result.Errors = append(result.Errors, opFailure(models.OpBaseParams, integ.Marketplace, err))
	}

	// Occupancy
	bookings, err := r.store.ListConfirmedFutureBookings(ctx, integ.PropertyID, today)
	if err != nil {
		result.Errors = append(result.Errors, opFailure(models.OpOccupancy, integ.Marketplace, err))
	} else {
		closed := BuildClosedIntervals(bookings, opts.ExcludeBookingID)
		// An empty set with no exclusion means nothing to close: skip the
		// call. With an exclusion the empty set must still be pushed, since
		// it is the signal that reopens the deleted booking's dates.
		if len(closed) > 0 || opts.ExcludeBookingID != nil {
			err := client.PushClosedIntervals(ctx, token, integ.RemoteAccountID, integ.RemoteListingID, closed)
			if err != nil {
				var apiErr *marketplace.APIError
				conflict := errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
				if conflict && opts.ExcludeBookingID == nil {
					// Ordinary sync racing a paid remote booking: expected,
					// the pull below reconciles it.
					log.Printf("Occupancy push conflict on integration %s, remote holds a locked booking", integ.ID)
				} else {
					op := opFailure(models.OpOccupancy, integ.Marketplace, err)
					if conflict {
						op.Message = "the deleted booking's dates could not be reopened: the marketplace holds a paid booking on them"
					}
					result.Errors = append(result.Errors, op)
				}
			}
		}
	}

	// Remote bookings
	stats, err = r.puller.Pull(ctx, client, token, integ)
	if err != nil {
		result.Errors = append(result.Errors, opFailure(models.OpPull, integ.Marketplace, err))
	}

	result.Success = len(result.Errors) == 0

	if err := r.store.TouchIntegrationSync(ctx, integ.ID, r.now()); err != nil {
		log.Printf("Warning: failed to update last sync for integration %s: %v", integ.ID, err)
	}
	r.recordAttempt(ctx, integ, startedAt, opts.Trigger, result, stats)

	return result, nil
}

func (r *Reconciler) recordAttempt(ctx context.Context, integ *models.Integration, startedAt time.Time, trigger string, result *Result, stats *PullStats) {
	finishedAt := r.now()
	errorsJSON, _ := json.Marshal(result.Errors)

	attempt := &models.SyncAttempt{
		IntegrationID: integ.ID,
		StartedAt:     startedAt,
		FinishedAt:    &finishedAt,
		Success:       len(result.Errors) == 0,
		Synced:        result.Synced,
		Trigger:       trigger,
		Errors:        errorsJSON,
	}
	if stats != nil {
		attempt.Pulled = stats.Pulled
		attempt.Created = stats.Created
		attempt.Updated = stats.Updated
	}

	if err := r.store.CreateSyncAttempt(ctx, attempt); err != nil {
		log.Printf("Warning: failed to record sync attempt for integration %s: %v", integ.ID, err)
	}
}

// opFailure maps an operation error to its audit record, giving the two
// failure modes a user can act on their own wording.
func opFailure(op, mp string, err error) models.OperationResult {
	res := models.OperationResult{
		Operation: op,
		Message:   err.Error(),
	}

	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) {
		res.StatusCode = apiErr.StatusCode
		res.ErrorCode = apiErr.Code
		res.Details = apiErr.Details
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			res.Message = fmt.Sprintf("listing not found on %s: check the listing id in the integration settings", mp)
		case apiErr.Code == marketplace.ErrCodeInvalidGrant:
			res.Message = fmt.Sprintf("the %s authorization has expired or was already used: reconnect the account", mp)
		default:
			res.Message = apiErr.Message
		}
	}
	return res
}
