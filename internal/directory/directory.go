// Package directory is the read model for organizations consumed by the
// authorization resolver when assembling available-organization lists.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("directory: organization not found")
	ErrDuplicate = errors.New("directory: organization already exists")
)

// Organization is a tenant on the platform.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Type      string    `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages organization records.
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	FindOrganization(ctx context.Context, id string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]*Organization, error)
}
