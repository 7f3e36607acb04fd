package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vendara.org/internal/authz"
)

const (
	authHeader       = "Authorization"
	bearer           = "Bearer "
	sessionKeyHeader = "X-Session-Key"
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

// ErrInvalidToken indicates the SSO bearer token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// IdentityBridge validates the platform SSO bearer token and extracts the
// plain identity tuple plus the session key. Everything past this point
// works on plain values only; no other component parses headers.
type IdentityBridge struct {
	secret []byte
	issuer string
}

// NewIdentityBridge constructs a bridge verifying HS256 tokens signed with
// the shared SSO secret.
func NewIdentityBridge(secret, issuer string) (*IdentityBridge, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("sso secret is required")
	}
	return &IdentityBridge{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

type bridgeClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Identify returns the identity and session key for a request.
func (b *IdentityBridge) Identify(r *http.Request) (authz.Identity, string, error) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return authz.Identity{}, "", err
	}
	claims, err := b.parse(token)
	if err != nil {
		return authz.Identity{}, "", err
	}
	identity := authz.Identity{
		ID:    claims.Subject,
		Email: strings.TrimSpace(strings.ToLower(claims.Email)),
		Name:  strings.TrimSpace(claims.Name),
	}
	sessionKey := strings.TrimSpace(r.Header.Get(sessionKeyHeader))
	if sessionKey == "" {
		// Fall back to the token id so every authenticated request has a
		// stable session to carry its context.
		sessionKey = claims.ID
	}
	return identity, sessionKey, nil
}

func (b *IdentityBridge) parse(token string) (*bridgeClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &bridgeClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return b.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*bridgeClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if b.issuer != "" && !strings.EqualFold(claims.Issuer, b.issuer) {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// MintToken signs an SSO-compatible token. Test and bootstrap helper; the
// production issuer is the external auth service.
func (b *IdentityBridge) MintToken(identity authz.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := time.Now().UTC()
	claims := bridgeClaims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type sessionKeyCtxKey struct{}

func contextWithSessionKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKeyCtxKey{}, key)
}

func sessionKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKeyCtxKey{}).(string); ok {
		return v
	}
	return ""
}

func (a *API) withIdentity(next http.Handler) http.Handler {
	if a.bridge == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		identity, sessionKey, err := a.bridge.Identify(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := authz.ContextWithIdentity(r.Context(), identity)
		ctx = contextWithSessionKey(ctx, sessionKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireIdentity fetches the identity placed by withIdentity; a missing
// identity on a protected route is a 401.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (authz.Identity, string, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return authz.Identity{}, "", false
	}
	return identity, sessionKeyFrom(r.Context()), true
}

// ensurePermission gates a handler on the resolver's effective-role check.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, resource, action string) bool {
	identity, sessionKey, ok := a.requireIdentity(w, r)
	if !ok {
		return false
	}
	allowed, err := a.resolver.HasPermission(r.Context(), identity, sessionKey, resource, action)
	if err != nil {
		handleDomainError(w, r, err)
		return false
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
