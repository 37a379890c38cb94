package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"staysync/marketplace"
	"staysync/models"
)

func TestOAuthState_RoundTrip(t *testing.T) {
	propertyID := uuid.New()
	now := time.Now()

	blob := EncodeState(propertyID, now)
	state, err := DecodeState(blob, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if state.PropertyID != propertyID {
		t.Fatalf("property id lost: %s", state.PropertyID)
	}
}

func TestOAuthState_Expired(t *testing.T) {
	blob := EncodeState(uuid.New(), time.Now().Add(-2*time.Hour))
	_, err := DecodeState(blob, time.Now())
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for a two hour old state, got %v", err)
	}
}

func TestOAuthState_Invalid(t *testing.T) {
	if _, err := DecodeState("%%%not-base64%%%", time.Now()); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for invalid base64, got %v", err)
	}
	if _, err := DecodeState("bm90IGpzb24", time.Now()); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for non-JSON state, got %v", err)
	}
	// valid shape but no property id
	blob := EncodeState(uuid.Nil, time.Now())
	if _, err := DecodeState(blob, time.Now()); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for missing property id, got %v", err)
	}
}

func TestConnector_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Fatalf("unexpected grant_type %q", got)
		}
		if got := r.PostForm.Get("redirect_uri"); !strings.Contains(got, "/api/marketplace/testmp/oauth/callback") {
			t.Fatalf("redirect_uri not per marketplace: %q", got)
		}
		fmt.Fprint(w, `{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`)
	}))
	defer srv.Close()

	store := newFakeStore()
	box := testBox()
	prop := &models.Property{ID: uuid.New(), BasePrice: 1000}
	store.properties[prop.ID] = prop

	clients := map[string]*marketplace.Client{"testmp": testMarketplaceClient(srv.URL)}
	conn := NewConnector(store, clients, box, "http://localhost:8080")

	state := EncodeState(prop.ID, time.Now())
	integ, err := conn.Complete(context.Background(), "testmp", "auth-code", state)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if integ.PropertyID != prop.ID || integ.Marketplace != "testmp" {
		t.Fatalf("integration wired to wrong property: %+v", integ)
	}
	if !integ.IsActive {
		t.Fatal("new integration must be active")
	}
	if plain, err := box.Open(integ.AccessToken); err != nil || plain != "at-1" {
		t.Fatalf("access token not sealed round-trippable: %q %v", plain, err)
	}
	if plain, err := box.Open(integ.RefreshToken); err != nil || plain != "rt-1" {
		t.Fatalf("refresh token not sealed round-trippable: %q %v", plain, err)
	}
	if integ.TokenExpiresAt == nil || time.Until(*integ.TokenExpiresAt) < 55*time.Minute {
		t.Fatalf("expiry not persisted: %v", integ.TokenExpiresAt)
	}

	// persisted row is retrievable by property
	stored, err := store.GetIntegrationByProperty(context.Background(), prop.ID, "testmp")
	if err != nil || stored == nil {
		t.Fatalf("integration not persisted: %v", err)
	}

	// completing again reuses the same integration row
	again, err := conn.Complete(context.Background(), "testmp", "auth-code-2", EncodeState(prop.ID, time.Now()))
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}
	if again.ID != integ.ID {
		t.Fatal("reconnect must reuse the existing integration")
	}
}

func TestConnector_CompleteUnknownProperty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no token exchange expected for unknown property")
	}))
	defer srv.Close()

	store := newFakeStore()
	clients := map[string]*marketplace.Client{"testmp": testMarketplaceClient(srv.URL)}
	conn := NewConnector(store, clients, testBox(), "http://localhost:8080")

	state := EncodeState(uuid.New(), time.Now())
	if _, err := conn.Complete(context.Background(), "testmp", "code", state); err == nil {
		t.Fatal("expected error for unknown property")
	}
}

func TestConnector_AuthorizeURL(t *testing.T) {
	store := newFakeStore()
	clients := map[string]*marketplace.Client{"testmp": testMarketplaceClient("http://mp")}
	conn := NewConnector(store, clients, testBox(), "http://localhost:8080")

	u, err := conn.AuthorizeURL("testmp", uuid.New(), "http://mp/oauth", "client-1")
	if err != nil {
		t.Fatalf("authorize url failed: %v", err)
	}
	for _, want := range []string{"response_type=code", "client_id=client-1", "state=", "redirect_uri="} {
		if !strings.Contains(u, want) {
			t.Errorf("authorize url missing %q: %s", want, u)
		}
	}

	if _, err := conn.AuthorizeURL("nope", uuid.New(), "http://mp/oauth", "c"); err == nil {
		t.Fatal("expected error for unknown marketplace")
	}
}
