package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"vendara.org/internal/membership"
)

var membershipCols = []string{
	"id", "member_type", "member_id", "target_type", "target_id", "role_id", "status", "is_active",
	"invited_by", "invited_at", "approved_by", "approved_at", "joined_at", "left_at", "invitation_message",
	"created_at", "updated_at",
}

func sampleMembership() *membership.Membership {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &membership.Membership{
		ID:        "01HZX0000000000000000000M1",
		Member:    membership.UserRef("u1"),
		Target:    membership.OrgRef("org-1"),
		RoleID:    "role-1",
		Status:    membership.StatusInvited,
		InvitedBy: "admin-1",
		InvitedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func membershipRow(m *membership.Membership) *sqlmock.Rows {
	return sqlmock.NewRows(membershipCols).AddRow(
		m.ID, string(m.Member.Type), m.Member.ID, string(m.Target.Type), m.Target.ID, m.RoleID, string(m.Status), m.IsActive,
		m.InvitedBy, m.InvitedAt, nil, m.ApprovedAt, m.JoinedAt, m.LeftAt, nil, m.CreatedAt, m.UpdatedAt,
	)
}

func TestCreateMembership(t *testing.T) {
	store, mock := newMockStore(t)
	m := sampleMembership()

	mock.ExpectExec("insert into memberships").
		WithArgs(m.ID, "user", "u1", "organization", "org-1", m.RoleID, "invited", false,
			m.InvitedBy, m.InvitedAt, nil, nil, nil, nil, nil, m.CreatedAt, m.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateMembership(context.Background(), m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateMembershipPairConflict(t *testing.T) {
	// Two racing invites both pass the application pre-check; the second
	// insert hits the pair index and must map to the domain conflict error.
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into memberships").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "memberships_pair_uniq"})

	err := store.CreateMembership(context.Background(), sampleMembership())
	if !errors.Is(err, membership.ErrDuplicateMembership) {
		t.Fatalf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestFindMembershipScansNullableFields(t *testing.T) {
	store, mock := newMockStore(t)
	m := sampleMembership()

	mock.ExpectQuery("select (.+) from memberships").
		WithArgs("user", "u1", "organization", "org-1").
		WillReturnRows(membershipRow(m))

	got, err := store.FindMembership(context.Background(), m.Member, m.Target)
	if err != nil {
		t.Fatalf("FindMembership: %v", err)
	}
	if got.Status != membership.StatusInvited || got.IsActive {
		t.Fatalf("unexpected state: %s/%v", got.Status, got.IsActive)
	}
	if got.ApprovedAt != nil || got.JoinedAt != nil || got.LeftAt != nil {
		t.Fatal("null timestamps must scan to nil")
	}
	if got.Member != m.Member || got.Target != m.Target {
		t.Fatalf("pair mismatch: %+v -> %+v", got.Member, got.Target)
	}
}

func TestFindMembershipNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from memberships").
		WillReturnRows(sqlmock.NewRows(membershipCols))

	_, err := store.FindMembership(context.Background(), membership.UserRef("ghost"), membership.OrgRef("org-1"))
	if !errors.Is(err, membership.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMembershipMissingRecord(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update memberships").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateMembership(context.Background(), sampleMembership())
	if !errors.Is(err, membership.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveByMemberFiltersType(t *testing.T) {
	store, mock := newMockStore(t)
	m := sampleMembership()
	m.Status = membership.StatusActive
	m.IsActive = true

	mock.ExpectQuery("select (.+) from memberships").
		WithArgs("user", "u1", "organization").
		WillReturnRows(membershipRow(m))

	out, err := store.ListActiveByMember(context.Background(), membership.UserRef("u1"), membership.EntityOrganization)
	if err != nil {
		t.Fatalf("ListActiveByMember: %v", err)
	}
	if len(out) != 1 || !out[0].IsActive {
		t.Fatalf("unexpected result: %+v", out)
	}
}
