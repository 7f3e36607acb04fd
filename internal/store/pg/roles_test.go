package pg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"vendara.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func roleRows(role *rbac.Role) *sqlmock.Rows {
	perms, _ := json.Marshal(role.Permissions)
	return sqlmock.NewRows([]string{"id", "name", "scope", "display_name", "description", "permissions", "is_active", "is_built_in", "created_at", "updated_at"}).
		AddRow(role.ID, role.Name, string(role.Scope), role.DisplayName, role.Description, perms, role.IsActive, role.IsBuiltIn, role.CreatedAt, role.UpdatedAt)
}

func sampleRole() *rbac.Role {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &rbac.Role{
		ID:          "01HZX0000000000000000000R1",
		Name:        "reviewer",
		Scope:       rbac.ScopeOrganization,
		DisplayName: "Reviewer",
		Permissions: rbac.PermissionSet{"campaigns": {"read": true}},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateRole(t *testing.T) {
	store, mock := newMockStore(t)
	role := sampleRole()

	mock.ExpectExec("insert into roles").
		WithArgs(role.ID, role.Name, string(role.Scope), role.DisplayName, role.Description,
			sqlmock.AnyArg(), role.IsActive, role.IsBuiltIn, role.CreatedAt, role.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRoleUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	role := sampleRole()

	mock.ExpectExec("insert into roles").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "roles_name_scope_uniq"})

	if err := store.CreateRole(context.Background(), role); !errors.Is(err, rbac.ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
}

func TestFindRoleDecodesPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	role := sampleRole()

	mock.ExpectQuery("select (.+) from roles").
		WithArgs(role.Name, string(role.Scope)).
		WillReturnRows(roleRows(role))

	got, err := store.FindRole(context.Background(), role.Name, role.Scope)
	if err != nil {
		t.Fatalf("FindRole: %v", err)
	}
	if !got.HasPermission("campaigns", "read") {
		t.Fatal("permissions did not survive the round trip")
	}
	if got.Scope != rbac.ScopeOrganization {
		t.Fatalf("unexpected scope %q", got.Scope)
	}
}

func TestFindRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from roles").
		WithArgs("ghost", "organization").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.FindRole(context.Background(), "ghost", rbac.ScopeOrganization); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRoleMissingRecord(t *testing.T) {
	store, mock := newMockStore(t)
	role := sampleRole()

	mock.ExpectExec("update roles").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateRole(context.Background(), role); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from roles").
		WithArgs("reviewer", "organization").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteRole(context.Background(), "reviewer", rbac.ScopeOrganization); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
}
