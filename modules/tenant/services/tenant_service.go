package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/franchise-core/modules/tenant/domain/entities/tenant"
	"github.com/iota-uz/franchise-core/pkg/composables"
	"github.com/iota-uz/franchise-core/pkg/constants"
)

// Quota resources the gate knows how to check.
const (
	QuotaLocations = "locations"
	QuotaUsers     = "users"
)

// ConfigLimitExceededError is returned when a requested configuration or an
// operation would exceed a hard ceiling or the tenant's plan limit.
type ConfigLimitExceededError struct {
	TenantID  uuid.UUID
	Resource  string
	Requested int
	Limit     int
}

func (e *ConfigLimitExceededError) Error() string {
	return fmt.Sprintf(
		"tenant %s: %s limit exceeded: requested %d, limit %d",
		e.TenantID, e.Resource, e.Requested, e.Limit,
	)
}

type TenantService struct {
	repo tenant.Repository
}

func NewTenantService(repo tenant.Repository) *TenantService {
	return &TenantService{repo: repo}
}

func (s *TenantService) GetConfiguration(ctx context.Context, tenantID uuid.UUID) (*tenant.Configuration, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*tenant.Configuration, error) {
		return s.repo.GetByTenantID(txCtx, tenantID)
	})
}

// ConfigureTenant merges a partial update onto the stored configuration,
// validates the result and persists it. Applying the same partial twice
// yields the same stored configuration. A tenant with no stored row starts
// from the defaults.
func (s *TenantService) ConfigureTenant(ctx context.Context, tenantID uuid.UUID, partial tenant.Partial) (*tenant.Configuration, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*tenant.Configuration, error) {
		current, err := s.repo.GetByTenantID(txCtx, tenantID)
		if errors.Is(err, tenant.ErrConfigurationNotFound) {
			current = tenant.New(tenantID)
		} else if err != nil {
			return nil, err
		}

		next := current.Merge(partial, time.Now().UTC())
		if err := validateConfiguration(next); err != nil {
			return nil, err
		}
		if err := s.repo.Save(txCtx, next); err != nil {
			return nil, errors.Wrap(err, "failed to save tenant configuration")
		}
		logger := composables.UseLogger(ctx)
		logger.WithField("tenant_id", tenantID).Info("tenant configuration updated")
		return next, nil
	})
}

// CheckQuota reports whether requested units of a resource fit within the
// tenant's plan. Exceeding the plan limit is a *ConfigLimitExceededError.
func (s *TenantService) CheckQuota(ctx context.Context, tenantID uuid.UUID, resource string, requested int) error {
	conf, err := s.GetConfiguration(ctx, tenantID)
	if errors.Is(err, tenant.ErrConfigurationNotFound) {
		conf = tenant.New(tenantID)
	} else if err != nil {
		return err
	}

	var limit int
	switch resource {
	case QuotaLocations:
		limit = conf.Limits().MaxLocations
	case QuotaUsers:
		limit = conf.Limits().MaxUsers
	default:
		return fmt.Errorf("unknown quota resource %q", resource)
	}
	if requested > limit {
		return &ConfigLimitExceededError{
			TenantID:  tenantID,
			Resource:  resource,
			Requested: requested,
			Limit:     limit,
		}
	}
	return nil
}

// FeatureEnabled reports whether a feature flag is on for the tenant. A
// tenant with no stored configuration has no flags enabled.
func (s *TenantService) FeatureEnabled(ctx context.Context, tenantID uuid.UUID, flag string) (bool, error) {
	conf, err := s.GetConfiguration(ctx, tenantID)
	if errors.Is(err, tenant.ErrConfigurationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conf.FeatureEnabled(flag), nil
}

func validateConfiguration(c *tenant.Configuration) error {
	limits := c.Limits()
	if err := constants.Validate.Struct(limits); err != nil {
		return errors.Wrap(err, "invalid limits")
	}
	billing := c.Billing()
	if err := constants.Validate.Struct(billing); err != nil {
		return errors.Wrap(err, "invalid billing")
	}
	compliance := c.Compliance()
	if err := constants.Validate.Struct(compliance); err != nil {
		return errors.Wrap(err, "invalid compliance")
	}

	if limits.MaxLocations > tenant.MaxLocationsCeiling {
		return &ConfigLimitExceededError{
			TenantID:  c.TenantID(),
			Resource:  QuotaLocations,
			Requested: limits.MaxLocations,
			Limit:     tenant.MaxLocationsCeiling,
		}
	}
	if limits.MaxUsers > tenant.MaxUsersCeiling {
		return &ConfigLimitExceededError{
			TenantID:  c.TenantID(),
			Resource:  QuotaUsers,
			Requested: limits.MaxUsers,
			Limit:     tenant.MaxUsersCeiling,
		}
	}
	if billing.MonthlyFee.IsNegative() {
		return fmt.Errorf("monthly fee may not be negative, got %s", billing.MonthlyFee)
	}
	return nil
}
