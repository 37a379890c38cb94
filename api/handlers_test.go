package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"staysync/config"
	"staysync/marketplace"
	"staysync/models"
	"staysync/secrets"
	"staysync/services"
)

// emptyStore satisfies services.Store and holds nothing.
type emptyStore struct{}

func (emptyStore) GetPropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	return nil, nil
}
func (emptyStore) GetIntegrationByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	return nil, nil
}
func (emptyStore) GetIntegrationByProperty(ctx context.Context, propertyID uuid.UUID, marketplace string) (*models.Integration, error) {
	return nil, nil
}
func (emptyStore) UpsertIntegration(ctx context.Context, i *models.Integration) error { return nil }
func (emptyStore) UpdateIntegrationTokens(ctx context.Context, id uuid.UUID, access, refresh []byte, expiresAt time.Time, prevExpiry *time.Time) (bool, error) {
	return true, nil
}
func (emptyStore) TouchIntegrationSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}
func (emptyStore) GetFutureRateOverrides(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.RateOverride, error) {
	return nil, nil
}
func (emptyStore) GetBookingBySourceAndRemoteID(ctx context.Context, source, remoteID string) (*models.Booking, error) {
	return nil, nil
}
func (emptyStore) CreateBooking(ctx context.Context, b *models.Booking) error { return nil }
func (emptyStore) UpdateBooking(ctx context.Context, b *models.Booking) error { return nil }
func (emptyStore) ListConfirmedFutureBookings(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.Booking, error) {
	return nil, nil
}
func (emptyStore) CreateSyncAttempt(ctx context.Context, a *models.SyncAttempt) error { return nil }

func TestTriggerSync_UnknownIntegrationIs404(t *testing.T) {
	rec := services.NewReconciler(emptyStore{}, nil, nil, nil, &config.SyncConfig{})

	r := mux.NewRouter()
	r.HandleFunc("/api/integrations/{id}/sync", TriggerSync(rec)).Methods("POST")

	req := httptest.NewRequest("POST", "/api/integrations/"+uuid.NewString()+"/sync", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown integration, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if resp.Error != ErrNotFound {
		t.Fatalf("expected not_found code, got %q", resp.Error)
	}
}

func TestOAuthCallback_BadStateIs400(t *testing.T) {
	box, err := secrets.NewBox(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	client := marketplace.NewClient(&config.MarketplaceConfig{ID: "testmp", BaseURL: "http://unused"},
		&config.SyncConfig{MaxRetries: 1, RetryBaseDelay: time.Millisecond})
	conn := services.NewConnector(emptyStore{}, map[string]*marketplace.Client{"testmp": client}, box, "http://localhost")

	r := mux.NewRouter()
	r.HandleFunc("/api/marketplace/{marketplace}/oauth/callback", OAuthCallback(conn)).Methods("GET")

	req := httptest.NewRequest("GET", "/api/marketplace/testmp/oauth/callback?code=c&state=garbage", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad state, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if resp.Error != ErrValidation {
		t.Fatalf("expected validation_error code, got %q", resp.Error)
	}
}
