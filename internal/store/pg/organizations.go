package pg

import (
	"context"
	"database/sql"
	"errors"

	"vendara.org/internal/directory"
)

func (s *Store) CreateOrganization(ctx context.Context, org *directory.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organizations (id, name, domain, org_type, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, org.ID, org.Name, nullIfEmpty(org.Domain), nullIfEmpty(org.Type), org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return directory.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) FindOrganization(ctx context.Context, id string) (*directory.Organization, error) {
	var (
		org     directory.Organization
		domain  sql.NullString
		orgType sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, domain, org_type, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &domain, &orgType, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	org.Domain = domain.String
	org.Type = orgType.String
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]*directory.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, domain, org_type, created_at, updated_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*directory.Organization
	for rows.Next() {
		var (
			org     directory.Organization
			domain  sql.NullString
			orgType sql.NullString
		)
		if err := rows.Scan(&org.ID, &org.Name, &domain, &orgType, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		org.Domain = domain.String
		org.Type = orgType.String
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
