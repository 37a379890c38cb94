package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"staysync/marketplace"
	"staysync/models"
	"staysync/secrets"
)

// stateMaxAge bounds how long an OAuth state blob stays redeemable.
const stateMaxAge = time.Hour

// ErrBadState marks a callback state blob that cannot be trusted: malformed,
// incomplete, or older than stateMaxAge.
var ErrBadState = errors.New("invalid oauth state")

// OAuthState is the opaque blob round-tripped through the marketplace's
// authorize redirect.
type OAuthState struct {
	PropertyID uuid.UUID `json:"property_id"`
	IssuedAt   int64     `json:"ts"`
}

func EncodeState(propertyID uuid.UUID, now time.Time) string {
	data, _ := json.Marshal(OAuthState{PropertyID: propertyID, IssuedAt: now.Unix()})
	return base64.URLEncoding.EncodeToString(data)
}

func DecodeState(blob string, now time.Time) (*OAuthState, error) {
	data, err := base64.URLEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadState, err)
	}
	var state OAuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadState, err)
	}
	if state.PropertyID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing property id", ErrBadState)
	}
	issued := time.Unix(state.IssuedAt, 0)
	if now.Sub(issued) > stateMaxAge {
		return nil, fmt.Errorf("%w: issued %s ago", ErrBadState, now.Sub(issued).Round(time.Second))
	}
	return &state, nil
}

// Connector drives the marketplace account connection flow: authorize URL
// out, authorization code back in, integration row persisted.
type Connector struct {
	store     Store
	clients   map[string]*marketplace.Client
	box       *secrets.Box
	publicURL string
	now       func() time.Time
}

func NewConnector(store Store, clients map[string]*marketplace.Client, box *secrets.Box, publicURL string) *Connector {
	return &Connector{
		store:     store,
		clients:   clients,
		box:       box,
		publicURL: publicURL,
		now:       time.Now,
	}
}

// callbackURL must match the registered OAuth redirect URI exactly, both at
// authorize time and at code exchange.
func (c *Connector) callbackURL(marketplaceID string) string {
	return fmt.Sprintf("%s/api/marketplace/%s/oauth/callback", c.publicURL, marketplaceID)
}

// AuthorizeURL builds the marketplace consent URL for a property.
func (c *Connector) AuthorizeURL(marketplaceID string, propertyID uuid.UUID, authorizeBase, clientID string) (string, error) {
	if _, ok := c.clients[marketplaceID]; !ok {
		return "", fmt.Errorf("no marketplace configured: %s", marketplaceID)
	}

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {c.callbackURL(marketplaceID)},
		"state":         {EncodeState(propertyID, c.now())},
	}
	return authorizeBase + "?" + q.Encode(), nil
}

// Complete redeems the callback's code+state and creates (or reactivates)
// the integration for the property named in the state.
func (c *Connector) Complete(ctx context.Context, marketplaceID, code, stateBlob string) (*models.Integration, error) {
	client, ok := c.clients[marketplaceID]
	if !ok {
		return nil, fmt.Errorf("no marketplace configured: %s", marketplaceID)
	}

	state, err := DecodeState(stateBlob, c.now())
	if err != nil {
		return nil, err
	}

	prop, err := c.store.GetPropertyByID(ctx, state.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	if prop == nil {
		return nil, fmt.Errorf("property %s: %w", state.PropertyID, ErrNotFound)
	}

	tok, err := client.ExchangeCode(ctx, code, c.callbackURL(marketplaceID))
	if err != nil {
		return nil, err
	}

	access, err := c.box.Seal(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	var refresh []byte
	if tok.RefreshToken != "" {
		if refresh, err = c.box.Seal(tok.RefreshToken); err != nil {
			return nil, fmt.Errorf("seal refresh token: %w", err)
		}
	}

	now := c.now()
	expiresAt := now.Add(time.Duration(tok.ExpiresIn) * time.Second)

	integ, err := c.store.GetIntegrationByProperty(ctx, state.PropertyID, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	if integ == nil {
		integ = &models.Integration{
			ID:          uuid.New(),
			PropertyID:  state.PropertyID,
			Marketplace: marketplaceID,
			CreatedAt:   now,
		}
	}

	integ.AccessToken = access
	integ.RefreshToken = refresh
	integ.TokenExpiresAt = &expiresAt
	integ.IsActive = true
	integ.UpdatedAt = now

	if err := c.store.UpsertIntegration(ctx, integ); err != nil {
		return nil, fmt.Errorf("persist integration: %w", err)
	}
	return integ, nil
}
