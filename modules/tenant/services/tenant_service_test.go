package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/tenant/domain/entities/tenant"
)

func TestValidateConfiguration_RejectsCeilingBreaches(t *testing.T) {
	tenantID := uuid.New()

	err := validateConfiguration(tenant.New(tenantID, tenant.WithLimits(tenant.Limits{
		MaxLocations: tenant.MaxLocationsCeiling + 1,
		MaxUsers:     10,
		APIRateLimit: 100,
	})))
	var limitErr *ConfigLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, QuotaLocations, limitErr.Resource)
	require.Equal(t, tenant.MaxLocationsCeiling, limitErr.Limit)

	err = validateConfiguration(tenant.New(tenantID, tenant.WithLimits(tenant.Limits{
		MaxLocations: 10,
		MaxUsers:     tenant.MaxUsersCeiling + 1,
		APIRateLimit: 100,
	})))
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, QuotaUsers, limitErr.Resource)
}

func TestValidateConfiguration_AcceptsLimitsAtCeiling(t *testing.T) {
	err := validateConfiguration(tenant.New(uuid.New(), tenant.WithLimits(tenant.Limits{
		MaxLocations: tenant.MaxLocationsCeiling,
		MaxUsers:     tenant.MaxUsersCeiling,
		APIRateLimit: 1,
	})))
	require.NoError(t, err)
}

func TestValidateConfiguration_RejectsBadBilling(t *testing.T) {
	err := validateConfiguration(tenant.New(uuid.New(), tenant.WithBilling(tenant.Billing{
		Plan:       "platinum",
		MonthlyFee: decimal.NewFromInt(10),
	})))
	require.Error(t, err)

	err = validateConfiguration(tenant.New(uuid.New(), tenant.WithBilling(tenant.Billing{
		Plan:       "growth",
		MonthlyFee: decimal.NewFromInt(-1),
	})))
	require.Error(t, err)

	err = validateConfiguration(tenant.New(uuid.New(), tenant.WithBilling(tenant.Billing{
		Plan:         "growth",
		MonthlyFee:   decimal.NewFromInt(499),
		BillingEmail: "not-an-email",
	})))
	require.Error(t, err)
}

func TestConfigLimitExceededError_Message(t *testing.T) {
	tenantID := uuid.New()
	err := &ConfigLimitExceededError{TenantID: tenantID, Resource: QuotaLocations, Requested: 12, Limit: 10}
	require.Contains(t, err.Error(), "locations")
	require.Contains(t, err.Error(), "requested 12")
}
