package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"staysync/config"
	"staysync/marketplace"
	"staysync/models"
	"staysync/secrets"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu sync.Mutex

	properties   map[uuid.UUID]*models.Property
	integrations map[uuid.UUID]*models.Integration
	overrides    []models.RateOverride
	bookings     map[string]*models.Booking
	confirmed    []models.Booking
	attempts     []models.SyncAttempt

	failTokenUpdate bool
	tokenUpdates    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		properties:   make(map[uuid.UUID]*models.Property),
		integrations: make(map[uuid.UUID]*models.Integration),
		bookings:     make(map[string]*models.Booking),
	}
}

func (s *fakeStore) GetPropertyByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetIntegrationByID(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.integrations[id]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (s *fakeStore) GetIntegrationByProperty(ctx context.Context, propertyID uuid.UUID, marketplace string) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.integrations {
		if i.PropertyID == propertyID && i.Marketplace == marketplace {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpsertIntegration(ctx context.Context, i *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.integrations[i.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateIntegrationTokens(ctx context.Context, id uuid.UUID, access, refresh []byte, expiresAt time.Time, prevExpiry *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokenUpdate {
		return false, nil
	}
	s.tokenUpdates++
	if i, ok := s.integrations[id]; ok {
		i.AccessToken = access
		if refresh != nil {
			i.RefreshToken = refresh
		}
		i.TokenExpiresAt = &expiresAt
	}
	return true, nil
}

func (s *fakeStore) TouchIntegrationSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.integrations[id]; ok {
		i.LastSyncAt = &at
	}
	return nil
}

func (s *fakeStore) GetFutureRateOverrides(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.RateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RateOverride(nil), s.overrides...), nil
}

func bookingKey(source, remoteID string) string {
	return source + "|" + remoteID
}

func (s *fakeStore) GetBookingBySourceAndRemoteID(ctx context.Context, source, remoteID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingKey(source, remoteID)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[bookingKey(b.Source, *b.RemoteID)] = &cp
	return nil
}

func (s *fakeStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[bookingKey(b.Source, *b.RemoteID)] = &cp
	return nil
}

func (s *fakeStore) ListConfirmedFutureBookings(ctx context.Context, propertyID uuid.UUID, from time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Booking(nil), s.confirmed...), nil
}

func (s *fakeStore) CreateSyncAttempt(ctx context.Context, a *models.SyncAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *a)
	return nil
}

// testBox returns a Box with a fixed test key.
func testBox() *secrets.Box {
	box, err := secrets.NewBox(strings.Repeat("ab", 32))
	if err != nil {
		panic(err)
	}
	return box
}

// testMarketplaceClient points a client at a local test server with flat
// endpoint paths.
func testMarketplaceClient(baseURL string) *marketplace.Client {
	return marketplace.NewClient(&config.MarketplaceConfig{
		ID:      "testmp",
		BaseURL: baseURL,
		Endpoints: map[string]string{
			"token":       "/token",
			"prices":      "/prices",
			"base_params": "/base",
			"intervals":   "/intervals",
			"bookings":    "/bookings",
		},
	}, &config.SyncConfig{MaxRetries: 3, RetryBaseDelay: time.Millisecond})
}

func mustSeal(box *secrets.Box, plain string) []byte {
	sealed, err := box.Seal(plain)
	if err != nil {
		panic(err)
	}
	return sealed
}
