package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	p := NewProvider("secret")
	tok, err := p.IssueToken(Identity{ID: "rider-1", Phone: "+51999"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	ident, err := p.FromToken(tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if ident.ID != "rider-1" || ident.Phone != "+51999" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
}

func TestFromTokenRejectsWrongSecret(t *testing.T) {
	tok, _ := NewProvider("secret-a").IssueToken(Identity{ID: "rider-1"}, time.Hour)
	if _, err := NewProvider("secret-b").FromToken(tok); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestFromTokenRejectsExpired(t *testing.T) {
	p := NewProvider("secret")
	tok, _ := p.IssueToken(Identity{ID: "rider-1"}, -time.Minute)
	if _, err := p.FromToken(tok); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	p := NewProvider("secret")
	var got Identity
	handler := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	// no token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// valid token
	tok, _ := p.IssueToken(Identity{ID: "rider-1"}, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if got.ID != "rider-1" {
		t.Fatalf("identity not injected: %+v", got)
	}
}
