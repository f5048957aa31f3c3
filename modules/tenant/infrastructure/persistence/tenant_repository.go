package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/franchise-core/modules/tenant/domain/entities/tenant"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

type TenantRepository struct{}

func NewTenantRepository() tenant.Repository {
	return &TenantRepository{}
}

func (r *TenantRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*tenant.Configuration, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var (
		limitsRaw     []byte
		billingRaw    []byte
		complianceRaw []byte
		createdAt     time.Time
		updatedAt     time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT limits, billing, compliance, created_at, updated_at
		FROM tenant_configurations
		WHERE tenant_id = $1
	`, tenantID).Scan(&limitsRaw, &billingRaw, &complianceRaw, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrConfigurationNotFound
		}
		return nil, errors.Wrap(err, "failed to query tenant configuration")
	}

	var limits tenant.Limits
	if err := json.Unmarshal(limitsRaw, &limits); err != nil {
		return nil, errors.Wrap(err, "failed to decode tenant limits")
	}
	var billing tenant.Billing
	if err := json.Unmarshal(billingRaw, &billing); err != nil {
		return nil, errors.Wrap(err, "failed to decode tenant billing")
	}
	var compliance tenant.Compliance
	if err := json.Unmarshal(complianceRaw, &compliance); err != nil {
		return nil, errors.Wrap(err, "failed to decode tenant compliance")
	}

	return tenant.New(tenantID,
		tenant.WithLimits(limits),
		tenant.WithBilling(billing),
		tenant.WithCompliance(compliance),
		tenant.WithCreatedAt(createdAt),
		tenant.WithUpdatedAt(updatedAt),
	), nil
}

func (r *TenantRepository) Save(ctx context.Context, c *tenant.Configuration) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	limits, err := json.Marshal(c.Limits())
	if err != nil {
		return errors.Wrap(err, "failed to encode tenant limits")
	}
	billing, err := json.Marshal(c.Billing())
	if err != nil {
		return errors.Wrap(err, "failed to encode tenant billing")
	}
	compliance, err := json.Marshal(c.Compliance())
	if err != nil {
		return errors.Wrap(err, "failed to encode tenant compliance")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_configurations (tenant_id, limits, billing, compliance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE
		SET limits = EXCLUDED.limits,
		    billing = EXCLUDED.billing,
		    compliance = EXCLUDED.compliance,
		    updated_at = EXCLUDED.updated_at
	`, c.TenantID(), limits, billing, compliance, c.CreatedAt(), c.UpdatedAt())
	if err != nil {
		return errors.Wrap(err, "failed to upsert tenant configuration")
	}
	return nil
}
