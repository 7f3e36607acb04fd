// Package session holds the per-session "current context" selection. The
// store performs no validation against live memberships; that is the
// authorization resolver's job, so session reads keep working even when
// membership data is temporarily unavailable.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no session record exists for the key.
var ErrNotFound = errors.New("session: not found")

// Context is the scope a session is currently acting within. Empty
// OrganizationID means no context has been selected yet.
type Context struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

// IsZero reports whether no context is selected.
func (c Context) IsZero() bool { return c.OrganizationID == "" }

// Session is the persisted record, keyed by the opaque session key issued
// by the external auth bridge.
type Session struct {
	Key            string    `json:"key"`
	Context        Context   `json:"context"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Store describes session persistence. Get returns ErrNotFound for unknown
// keys; Set upserts the context and refreshes LastActivityAt.
type Store interface {
	GetSession(ctx context.Context, key string) (*Session, error)
	SetSession(ctx context.Context, key string, sctx Context) error
}
