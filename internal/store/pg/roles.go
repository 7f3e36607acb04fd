package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vendara.org/internal/rbac"
)

const roleColumns = `id, name, scope, display_name, description, permissions, is_active, is_built_in, created_at, updated_at`

func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (id, name, scope, display_name, description, permissions, is_active, is_built_in, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, role.ID, role.Name, string(role.Scope), role.DisplayName, role.Description, perms, role.IsActive, role.IsBuiltIn, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrDuplicateRole
		}
		return err
	}
	return nil
}

func (s *Store) FindRole(ctx context.Context, name string, scope rbac.Scope) (*rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where name = $1 and scope = $2
	`, name, string(scope))
	return scanRole(row)
}

func (s *Store) FindRoleByID(ctx context.Context, id string) (*rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, id)
	return scanRole(row)
}

func (s *Store) ListRoles(ctx context.Context, scope rbac.Scope) ([]*rbac.Role, error) {
	query := `select ` + roleColumns + ` from roles order by scope, name`
	args := []any{}
	if scope != "" {
		query = `select ` + roleColumns + ` from roles where scope = $1 order by name`
		args = append(args, string(scope))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update roles
		set display_name = $1, description = $2, permissions = $3, is_active = $4, updated_at = $5
		where id = $6
	`, role.DisplayName, role.Description, perms, role.IsActive, role.UpdatedAt, role.ID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string, scope rbac.Scope) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name = $1 and scope = $2`, name, string(scope))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*rbac.Role, error) {
	var (
		role     rbac.Role
		scope    string
		rawPerms []byte
	)
	err := row.Scan(&role.ID, &role.Name, &scope, &role.DisplayName, &role.Description, &rawPerms, &role.IsActive, &role.IsBuiltIn, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role.Scope = rbac.Scope(scope)
	role.Permissions = rbac.PermissionSet{}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}
