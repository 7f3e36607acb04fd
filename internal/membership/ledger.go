package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vendara.org/internal/ids"
)

// Ledger owns every membership record mutation. All transitions re-read the
// record by pair first; absence yields ErrNotFound, failed guards yield a
// named InvalidTransitionError. No transition silently no-ops.
type Ledger struct {
	store Store
	now   func() time.Time
}

// LedgerOption configures Ledger behavior.
type LedgerOption func(*Ledger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger backed by the given store.
func NewLedger(store Store, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: membership store is required", ErrInvalidInput)
	}
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// InviteRequest carries the fields recorded on a new invitation.
type InviteRequest struct {
	Member    EntityRef
	Target    EntityRef
	RoleID    string
	InvitedBy string
	Message   string
}

// Invite creates an invited membership for a pair with no existing record.
// The duplicate check here only produces a friendlier error early; the
// storage layer's unique index on the pair is what actually guarantees at
// most one record under concurrent invites.
func (l *Ledger) Invite(ctx context.Context, req InviteRequest) (*Membership, error) {
	if err := validateRef("member", req.Member); err != nil {
		return nil, err
	}
	if err := validateRef("target", req.Target); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.RoleID) == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}

	if _, err := l.store.FindMembership(ctx, req.Member, req.Target); err == nil {
		return nil, ErrDuplicateMembership
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := l.now().UTC()
	m := &Membership{
		ID:                ids.New(),
		Member:            req.Member,
		Target:            req.Target,
		RoleID:            strings.TrimSpace(req.RoleID),
		Status:            StatusInvited,
		IsActive:          false,
		InvitedBy:         strings.TrimSpace(req.InvitedBy),
		InvitedAt:         now,
		InvitationMessage: strings.TrimSpace(req.Message),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := l.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Accept moves an invited membership to active. JoinedAt is set on this
// first entry into active and never refreshed afterwards.
func (l *Ledger) Accept(ctx context.Context, member, target EntityRef) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusInvited {
		return nil, invalidTransition("accept", m.Status, "only invited memberships can be accepted")
	}
	l.enterActive(m)
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Reject moves an invited membership to left.
func (l *Ledger) Reject(ctx context.Context, member, target EntityRef) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusInvited {
		return nil, invalidTransition("reject", m.Status, "only invited memberships can be rejected")
	}
	l.enterLeft(m)
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Approve activates a membership from any state. Used for non-self-service
// approval flows; records the approver.
func (l *Ledger) Approve(ctx context.Context, member, target EntityRef, approvedBy string) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	l.enterActive(m)
	m.ApprovedBy = strings.TrimSpace(approvedBy)
	m.ApprovedAt = &now
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Suspend moves an active membership to suspended.
func (l *Ledger) Suspend(ctx context.Context, member, target EntityRef) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusActive {
		return nil, invalidTransition("suspend", m.Status, "only active memberships can be suspended")
	}
	m.Status = StatusSuspended
	m.IsActive = false
	m.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Reactivate moves a suspended membership back to active. JoinedAt is left
// untouched.
func (l *Ledger) Reactivate(ctx context.Context, member, target EntityRef) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusSuspended {
		return nil, invalidTransition("reactivate", m.Status, "only suspended memberships can be reactivated")
	}
	m.Status = StatusActive
	m.IsActive = true
	m.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Leave moves a membership to left from any state.
func (l *Ledger) Leave(ctx context.Context, member, target EntityRef) (*Membership, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	if m.Status == StatusLeft {
		return nil, invalidTransition("leave", m.Status, "membership has already been left")
	}
	l.enterLeft(m)
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateRole replaces the role reference without touching the lifecycle.
func (l *Ledger) UpdateRole(ctx context.Context, member, target EntityRef, roleID string) (*Membership, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return nil, err
	}
	m.RoleID = roleID
	m.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes an inactive membership record.
func (l *Ledger) Delete(ctx context.Context, member, target EntityRef) error {
	m, err := l.store.FindMembership(ctx, member, target)
	if err != nil {
		return err
	}
	if m.IsActive {
		return invalidTransition("delete", m.Status, "cannot delete active membership")
	}
	return l.store.DeleteMembership(ctx, member, target)
}

// GetByMember lists every membership held by a member, optionally filtered
// by target kind.
func (l *Ledger) GetByMember(ctx context.Context, member EntityRef, targetType EntityType) ([]*Membership, error) {
	if err := validateRef("member", member); err != nil {
		return nil, err
	}
	return l.store.ListByMember(ctx, member, targetType)
}

// GetByTarget lists every membership recorded against a target scope.
func (l *Ledger) GetByTarget(ctx context.Context, target EntityRef) ([]*Membership, error) {
	if err := validateRef("target", target); err != nil {
		return nil, err
	}
	return l.store.ListByTarget(ctx, target)
}

// GetActiveByMember lists only active memberships held by a member.
func (l *Ledger) GetActiveByMember(ctx context.Context, member EntityRef, targetType EntityType) ([]*Membership, error) {
	if err := validateRef("member", member); err != nil {
		return nil, err
	}
	return l.store.ListActiveByMember(ctx, member, targetType)
}

// IsActiveMember reports whether an active membership exists for the pair.
func (l *Ledger) IsActiveMember(ctx context.Context, member, target EntityRef) (bool, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsActive, nil
}

// HasRole reports whether the pair's membership carries the given role
// reference and is active.
func (l *Ledger) HasRole(ctx context.Context, member, target EntityRef, roleID string) (bool, error) {
	m, err := l.store.FindMembership(ctx, member, target)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsActive && m.RoleID == roleID, nil
}

// enterActive keeps IsActive in sync and sets JoinedAt exactly once.
// LeftAt is cleared so a reinstated record never reads as departed.
func (l *Ledger) enterActive(m *Membership) {
	now := l.now().UTC()
	m.Status = StatusActive
	m.IsActive = true
	if m.JoinedAt == nil {
		m.JoinedAt = &now
	}
	m.LeftAt = nil
	m.UpdatedAt = now
}

func (l *Ledger) enterLeft(m *Membership) {
	now := l.now().UTC()
	m.Status = StatusLeft
	m.IsActive = false
	m.LeftAt = &now
	m.UpdatedAt = now
}

func validateRef(label string, ref EntityRef) error {
	if strings.TrimSpace(string(ref.Type)) == "" || strings.TrimSpace(ref.ID) == "" {
		return fmt.Errorf("%w: %s type and id are required", ErrInvalidInput, label)
	}
	return nil
}
