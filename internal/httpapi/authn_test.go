package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vendara.org/internal/authz"
)

func testBridge(t *testing.T) *IdentityBridge {
	t.Helper()
	b, err := NewIdentityBridge("test-secret", "vendara-test")
	if err != nil {
		t.Fatalf("NewIdentityBridge: %v", err)
	}
	return b
}

func TestIdentifyRoundTrip(t *testing.T) {
	b := testBridge(t)
	token, err := b.MintToken(authz.Identity{ID: "u1", Email: "U1@Acme.Test", Name: " Alice "}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Session-Key", "sess-1")

	identity, sessionKey, err := b.Identify(req)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity.ID != "u1" {
		t.Fatalf("unexpected id %q", identity.ID)
	}
	if identity.Email != "u1@acme.test" {
		t.Fatalf("email must be lowercased, got %q", identity.Email)
	}
	if identity.Name != "Alice" {
		t.Fatalf("name must be trimmed, got %q", identity.Name)
	}
	if sessionKey != "sess-1" {
		t.Fatalf("unexpected session key %q", sessionKey)
	}
}

func TestIdentifyRejectsBadTokens(t *testing.T) {
	b := testBridge(t)

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not.a.token"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if _, _, err := b.Identify(req); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestIdentifyRejectsForeignSignature(t *testing.T) {
	other, err := NewIdentityBridge("other-secret", "vendara-test")
	if err != nil {
		t.Fatalf("NewIdentityBridge: %v", err)
	}
	token, err := other.MintToken(authz.Identity{ID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, _, err := testBridge(t).Identify(req); err == nil {
		t.Fatal("expected signature rejection")
	}
}

func TestIdentifyRejectsWrongIssuer(t *testing.T) {
	other, err := NewIdentityBridge("test-secret", "someone-else")
	if err != nil {
		t.Fatalf("NewIdentityBridge: %v", err)
	}
	token, err := other.MintToken(authz.Identity{ID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, _, err := testBridge(t).Identify(req); err == nil {
		t.Fatal("expected issuer rejection")
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken("Bearer abc"); err != nil {
		t.Fatalf("valid header: %v", err)
	}
	if _, err := extractBearerToken("bearer abc"); err != nil {
		t.Fatalf("scheme match must be case-insensitive: %v", err)
	}
	for _, bad := range []string{"", "Bearer ", "Token abc"} {
		if _, err := extractBearerToken(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
