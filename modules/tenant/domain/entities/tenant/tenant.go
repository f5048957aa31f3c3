package tenant

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Hard ceilings no plan may exceed regardless of what an operator asks for.
const (
	MaxLocationsCeiling = 1000
	MaxUsersCeiling     = 10000
)

// Limits bound what a tenant may provision. Zero values in a partial update
// mean "keep current".
type Limits struct {
	MaxLocations int             `json:"max_locations" validate:"omitempty,min=1"`
	MaxUsers     int             `json:"max_users" validate:"omitempty,min=1"`
	APIRateLimit int             `json:"api_rate_limit" validate:"omitempty,min=1"`
	FeatureFlags map[string]bool `json:"feature_flags,omitempty"`
}

type Billing struct {
	Plan         string          `json:"plan" validate:"omitempty,oneof=starter growth enterprise"`
	MonthlyFee   decimal.Decimal `json:"monthly_fee"`
	BillingEmail string          `json:"billing_email" validate:"omitempty,email"`
}

type Compliance struct {
	DataRegion            string `json:"data_region"`
	AuditLogRetentionDays int    `json:"audit_log_retention_days" validate:"omitempty,min=1"`
}

type Option func(c *Configuration)

func WithLimits(l Limits) Option {
	return func(c *Configuration) {
		c.limits = l
	}
}

func WithBilling(b Billing) Option {
	return func(c *Configuration) {
		c.billing = b
	}
}

func WithCompliance(cp Compliance) Option {
	return func(c *Configuration) {
		c.compliance = cp
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(c *Configuration) {
		c.createdAt = t
	}
}

func WithUpdatedAt(t time.Time) Option {
	return func(c *Configuration) {
		c.updatedAt = t
	}
}

// Configuration is the per-tenant control record: plan limits, billing and
// compliance settings. One row per tenant.
type Configuration struct {
	tenantID   uuid.UUID
	limits     Limits
	billing    Billing
	compliance Compliance
	createdAt  time.Time
	updatedAt  time.Time
}

func New(tenantID uuid.UUID, opts ...Option) *Configuration {
	now := time.Now().UTC()
	c := &Configuration{
		tenantID: tenantID,
		limits: Limits{
			MaxLocations: 10,
			MaxUsers:     50,
			APIRateLimit: 100,
		},
		billing:    Billing{Plan: "starter", MonthlyFee: decimal.Zero},
		compliance: Compliance{DataRegion: "us-east-1", AuditLogRetentionDays: 90},
		createdAt:  now,
		updatedAt:  now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Configuration) TenantID() uuid.UUID {
	return c.tenantID
}

func (c *Configuration) Limits() Limits {
	return c.limits
}

func (c *Configuration) Billing() Billing {
	return c.billing
}

func (c *Configuration) Compliance() Compliance {
	return c.compliance
}

func (c *Configuration) CreatedAt() time.Time {
	return c.createdAt
}

func (c *Configuration) UpdatedAt() time.Time {
	return c.updatedAt
}

func (c *Configuration) FeatureEnabled(flag string) bool {
	return c.limits.FeatureFlags[flag]
}

// Merge applies a partial update and returns a new Configuration. Zero-valued
// fields of the partial keep the current value; feature flags are merged
// key by key, with explicit false disabling a flag.
func (c *Configuration) Merge(p Partial, now time.Time) *Configuration {
	next := *c
	next.updatedAt = now

	if p.Limits != nil {
		if p.Limits.MaxLocations != 0 {
			next.limits.MaxLocations = p.Limits.MaxLocations
		}
		if p.Limits.MaxUsers != 0 {
			next.limits.MaxUsers = p.Limits.MaxUsers
		}
		if p.Limits.APIRateLimit != 0 {
			next.limits.APIRateLimit = p.Limits.APIRateLimit
		}
		if len(p.Limits.FeatureFlags) > 0 {
			merged := make(map[string]bool, len(c.limits.FeatureFlags)+len(p.Limits.FeatureFlags))
			for k, v := range c.limits.FeatureFlags {
				merged[k] = v
			}
			for k, v := range p.Limits.FeatureFlags {
				merged[k] = v
			}
			next.limits.FeatureFlags = merged
		}
	}
	if p.Billing != nil {
		if p.Billing.Plan != "" {
			next.billing.Plan = p.Billing.Plan
		}
		if !p.Billing.MonthlyFee.IsZero() {
			next.billing.MonthlyFee = p.Billing.MonthlyFee
		}
		if p.Billing.BillingEmail != "" {
			next.billing.BillingEmail = p.Billing.BillingEmail
		}
	}
	if p.Compliance != nil {
		if p.Compliance.DataRegion != "" {
			next.compliance.DataRegion = p.Compliance.DataRegion
		}
		if p.Compliance.AuditLogRetentionDays != 0 {
			next.compliance.AuditLogRetentionDays = p.Compliance.AuditLogRetentionDays
		}
	}
	return &next
}

// Partial is a sparse configuration update. Nil sections are untouched.
type Partial struct {
	Limits     *Limits     `json:"limits,omitempty"`
	Billing    *Billing    `json:"billing,omitempty"`
	Compliance *Compliance `json:"compliance,omitempty"`
}
