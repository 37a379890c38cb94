package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"staysync/marketplace"
	"staysync/models"
	"staysync/secrets"
)

// tokenSafetyMargin is how close to expiry a stored token may get before a
// refresh is forced.
const tokenSafetyMargin = 5 * time.Minute

// tokenState drives the acquisition flow. The fallback from refresh to
// client credentials is an explicit transition, not an exception path.
type tokenState int

const (
	stateCheckStored tokenState = iota
	stateTryRefresh
	stateClientCredentials
	stateDone
	stateFailed
)

// TokenGuardian hands out a currently-valid bearer token for an integration,
// refreshing and persisting when the stored expiry is inside the safety
// margin. Failure of both the refresh and client-credentials paths is fatal
// for the whole reconciliation attempt.
type TokenGuardian struct {
	store Store
	box   *secrets.Box
	now   func() time.Time
}

func NewTokenGuardian(store Store, box *secrets.Box) *TokenGuardian {
	return &TokenGuardian{store: store, box: box, now: time.Now}
}

func (g *TokenGuardian) Ensure(ctx context.Context, client *marketplace.Client, integ *models.Integration) (string, error) {
	var (
		state    = stateCheckStored
		token    string
		lastErr  error
		acquired *marketplace.TokenResponse
	)

	for {
		switch state {
		case stateCheckStored:
			if g.storedTokenValid(integ) {
				plain, err := g.box.Open(integ.AccessToken)
				if err != nil {
					log.Printf("Warning: stored token for integration %s unreadable: %v", integ.ID, err)
					state = stateTryRefresh
					continue
				}
				token = plain
				state = stateDone
				continue
			}
			state = stateTryRefresh

		case stateTryRefresh:
			if len(integ.RefreshToken) == 0 {
				state = stateClientCredentials
				continue
			}
			refresh, err := g.box.Open(integ.RefreshToken)
			if err != nil {
				log.Printf("Warning: stored refresh token for integration %s unreadable: %v", integ.ID, err)
				state = stateClientCredentials
				continue
			}
			acquired, err = client.RefreshAccessToken(ctx, refresh)
			if err != nil {
				log.Printf("Refresh grant failed for integration %s, falling back to client credentials: %v", integ.ID, err)
				lastErr = err
				state = stateClientCredentials
				continue
			}
			token = acquired.AccessToken
			state = stateDone

		case stateClientCredentials:
			var err error
			acquired, err = client.ClientCredentialsToken(ctx)
			if err != nil {
				lastErr = err
				state = stateFailed
				continue
			}
			token = acquired.AccessToken
			state = stateDone

		case stateDone:
			if acquired != nil {
				adopted, err := g.persist(ctx, integ, acquired)
				if err != nil {
					return "", err
				}
				if adopted != "" {
					token = adopted
				}
			}
			return token, nil

		case stateFailed:
			return "", fmt.Errorf("no valid token obtainable: %w", lastErr)
		}
	}
}

func (g *TokenGuardian) storedTokenValid(integ *models.Integration) bool {
	if len(integ.AccessToken) == 0 || integ.TokenExpiresAt == nil {
		return false
	}
	return integ.TokenExpiresAt.After(g.now().Add(tokenSafetyMargin))
}

// persist writes the new token conditionally on the expiry read before the
// refresh. On a lost race the concurrent attempt's token is adopted instead
// of overwritten; the adopted plaintext token is returned.
func (g *TokenGuardian) persist(ctx context.Context, integ *models.Integration, tok *marketplace.TokenResponse) (string, error) {
	access, err := g.box.Seal(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("seal access token: %w", err)
	}

	var refresh []byte
	if tok.RefreshToken != "" {
		if refresh, err = g.box.Seal(tok.RefreshToken); err != nil {
			return "", fmt.Errorf("seal refresh token: %w", err)
		}
	}

	expiresAt := g.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	updated, err := g.store.UpdateIntegrationTokens(ctx, integ.ID, access, refresh, expiresAt, integ.TokenExpiresAt)
	if err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	if updated {
		integ.AccessToken = access
		if refresh != nil {
			integ.RefreshToken = refresh
		}
		integ.TokenExpiresAt = &expiresAt
		return "", nil
	}

	// Lost the conditional update: a concurrent attempt refreshed first.
	// Re-read and keep using its token so we don't invalidate it.
	log.Printf("Token refresh race on integration %s, re-reading", integ.ID)
	fresh, err := g.store.GetIntegrationByID(ctx, integ.ID)
	if err != nil {
		return "", fmt.Errorf("re-read integration: %w", err)
	}
	if fresh == nil {
		return "", nil
	}
	*integ = *fresh
	if len(fresh.AccessToken) > 0 {
		if plain, err := g.box.Open(fresh.AccessToken); err == nil {
			return plain, nil
		}
	}
	return "", nil
}
