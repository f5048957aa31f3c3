package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrConfigurationNotFound = errors.New("tenant configuration not found")

type Repository interface {
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*Configuration, error)
	Save(ctx context.Context, c *Configuration) error
}
