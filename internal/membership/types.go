package membership

import (
	"context"
	"time"
)

// EntityType tags one half of a relationship pair.
type EntityType string

const (
	EntityUser         EntityType = "user"
	EntityOrganization EntityType = "organization"
	EntityCampaign     EntityType = "campaign"
)

// EntityRef names a member or target by kind and id. The ledger is generic
// over relationship kind; callers get compile-checkable tags.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// UserRef is shorthand for the most common member kind.
func UserRef(id string) EntityRef { return EntityRef{Type: EntityUser, ID: id} }

// OrgRef is shorthand for the most common target kind.
func OrgRef(id string) EntityRef { return EntityRef{Type: EntityOrganization, ID: id} }

// Status is the lifecycle state of a relationship. Absence of a record is
// the implicit "none" state.
type Status string

const (
	StatusInvited   Status = "invited"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusLeft      Status = "left"
)

// Membership records the relationship between a member and a target scope.
// At most one record exists per (member, target) pair at any time.
type Membership struct {
	ID                string     `json:"id"`
	Member            EntityRef  `json:"member"`
	Target            EntityRef  `json:"target"`
	RoleID            string     `json:"role_id"`
	Status            Status     `json:"status"`
	IsActive          bool       `json:"is_active"`
	InvitedBy         string     `json:"invited_by,omitempty"`
	InvitedAt         time.Time  `json:"invited_at"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	JoinedAt          *time.Time `json:"joined_at,omitempty"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
	InvitationMessage string     `json:"invitation_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Store describes persistence operations required by the ledger. Create
// must enforce pair uniqueness at the storage layer and fail with
// ErrDuplicateMembership on violation; the ledger's own existence check is
// only an optimization for a friendlier error. Lookups fail with
// ErrNotFound when the record is absent.
type Store interface {
	CreateMembership(ctx context.Context, m *Membership) error
	FindMembership(ctx context.Context, member, target EntityRef) (*Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, member, target EntityRef) error
	ListByMember(ctx context.Context, member EntityRef, targetType EntityType) ([]*Membership, error)
	ListByTarget(ctx context.Context, target EntityRef) ([]*Membership, error)
	ListActiveByMember(ctx context.Context, member EntityRef, targetType EntityType) ([]*Membership, error)
}
