package pg

import (
	"context"
	"database/sql"
	"errors"

	"vendara.org/internal/membership"
)

const membershipColumns = `id, member_type, member_id, target_type, target_id, role_id, status, is_active,
	invited_by, invited_at, approved_by, approved_at, joined_at, left_at, invitation_message, created_at, updated_at`

// CreateMembership relies on the unique index over the pair columns; a
// 23505 from two racing invites surfaces as ErrDuplicateMembership.
func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships (id, member_type, member_id, target_type, target_id, role_id, status, is_active,
			invited_by, invited_at, approved_by, approved_at, joined_at, left_at, invitation_message, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, m.ID, string(m.Member.Type), m.Member.ID, string(m.Target.Type), m.Target.ID, m.RoleID, string(m.Status), m.IsActive,
		nullIfEmpty(m.InvitedBy), m.InvitedAt, nullIfEmpty(m.ApprovedBy), m.ApprovedAt, m.JoinedAt, m.LeftAt,
		nullIfEmpty(m.InvitationMessage), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return membership.ErrDuplicateMembership
		}
		return err
	}
	return nil
}

func (s *Store) FindMembership(ctx context.Context, member, target membership.EntityRef) (*membership.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+membershipColumns+`
		from memberships
		where member_type = $1 and member_id = $2 and target_type = $3 and target_id = $4
	`, string(member.Type), member.ID, string(target.Type), target.ID)
	return scanMembership(row)
}

func (s *Store) UpdateMembership(ctx context.Context, m *membership.Membership) error {
	res, err := s.db.ExecContext(ctx, `
		update memberships
		set role_id = $1, status = $2, is_active = $3, approved_by = $4, approved_at = $5,
			joined_at = $6, left_at = $7, updated_at = $8
		where id = $9
	`, m.RoleID, string(m.Status), m.IsActive, nullIfEmpty(m.ApprovedBy), m.ApprovedAt, m.JoinedAt, m.LeftAt, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return membership.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, member, target membership.EntityRef) error {
	res, err := s.db.ExecContext(ctx, `
		delete from memberships
		where member_type = $1 and member_id = $2 and target_type = $3 and target_id = $4
	`, string(member.Type), member.ID, string(target.Type), target.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return membership.ErrNotFound
	}
	return nil
}

func (s *Store) ListByMember(ctx context.Context, member membership.EntityRef, targetType membership.EntityType) ([]*membership.Membership, error) {
	return s.listMemberships(ctx, `
		select `+membershipColumns+`
		from memberships
		where member_type = $1 and member_id = $2 and ($3 = '' or target_type = $3)
		order by created_at, id
	`, string(member.Type), member.ID, string(targetType))
}

func (s *Store) ListByTarget(ctx context.Context, target membership.EntityRef) ([]*membership.Membership, error) {
	return s.listMemberships(ctx, `
		select `+membershipColumns+`
		from memberships
		where target_type = $1 and target_id = $2
		order by created_at, id
	`, string(target.Type), target.ID)
}

// ListActiveByMember orders by creation time so the resolver's "first
// membership" default is deterministic across concurrent requests.
func (s *Store) ListActiveByMember(ctx context.Context, member membership.EntityRef, targetType membership.EntityType) ([]*membership.Membership, error) {
	return s.listMemberships(ctx, `
		select `+membershipColumns+`
		from memberships
		where member_type = $1 and member_id = $2 and is_active and ($3 = '' or target_type = $3)
		order by created_at, id
	`, string(member.Type), member.ID, string(targetType))
}

func (s *Store) listMemberships(ctx context.Context, query string, args ...any) ([]*membership.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMembership(row rowScanner) (*membership.Membership, error) {
	var (
		m          membership.Membership
		memberType string
		targetType string
		status     string
		invitedBy  sql.NullString
		approvedBy sql.NullString
		approvedAt sql.NullTime
		joinedAt   sql.NullTime
		leftAt     sql.NullTime
		message    sql.NullString
	)
	err := row.Scan(&m.ID, &memberType, &m.Member.ID, &targetType, &m.Target.ID, &m.RoleID, &status, &m.IsActive,
		&invitedBy, &m.InvitedAt, &approvedBy, &approvedAt, &joinedAt, &leftAt, &message, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, membership.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Member.Type = membership.EntityType(memberType)
	m.Target.Type = membership.EntityType(targetType)
	m.Status = membership.Status(status)
	m.InvitedBy = invitedBy.String
	m.ApprovedBy = approvedBy.String
	m.InvitationMessage = message.String
	if approvedAt.Valid {
		t := approvedAt.Time
		m.ApprovedAt = &t
	}
	if joinedAt.Valid {
		t := joinedAt.Time
		m.JoinedAt = &t
	}
	if leftAt.Valid {
		t := leftAt.Time
		m.LeftAt = &t
	}
	return &m, nil
}
