package grant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	// GetBySubject returns every grant held by the subject, including
	// revoked and expired ones; filtering is resolution policy, not
	// storage policy.
	GetBySubject(ctx context.Context, subjectID uuid.UUID) ([]*Grant, error)
	// Create appends a grant. Grants are append-only.
	Create(ctx context.Context, g *Grant) (*Grant, error)
	// Revoke sets the soft revocation marker, preserving the audit trail.
	Revoke(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, at time.Time) error
}

// Grant is one append-only permission record. Revocation is a soft marker,
// never an in-place edit.
type Grant struct {
	id              uuid.UUID
	tenantID        uuid.UUID
	subjectID       uuid.UUID
	resourceType    string
	resourceID      uuid.UUID
	level           Level
	conditions      Conditions
	grantedBy       uuid.UUID
	grantedAt       time.Time
	expiresAt       *time.Time
	revokedAt       *time.Time
	revokedBy       *uuid.UUID
	isInherited     bool
	inheritancePath string
}

type Option func(*Grant)

func WithID(id uuid.UUID) Option {
	return func(g *Grant) { g.id = id }
}

func WithConditions(c Conditions) Option {
	return func(g *Grant) { g.conditions = c }
}

func WithExpiresAt(t *time.Time) Option {
	return func(g *Grant) { g.expiresAt = t }
}

func WithRevoked(at *time.Time, by *uuid.UUID) Option {
	return func(g *Grant) {
		g.revokedAt = at
		g.revokedBy = by
	}
}

func WithGrantedAt(t time.Time) Option {
	return func(g *Grant) { g.grantedAt = t }
}

func WithInheritance(path string) Option {
	return func(g *Grant) {
		g.isInherited = true
		g.inheritancePath = path
	}
}

func New(tenantID, subjectID uuid.UUID, resourceType string, resourceID uuid.UUID, level Level, grantedBy uuid.UUID, opts ...Option) *Grant {
	g := &Grant{
		id:           uuid.New(),
		tenantID:     tenantID,
		subjectID:    subjectID,
		resourceType: resourceType,
		resourceID:   resourceID,
		level:        level,
		grantedBy:    grantedBy,
		grantedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Grant) ID() uuid.UUID           { return g.id }
func (g *Grant) TenantID() uuid.UUID     { return g.tenantID }
func (g *Grant) SubjectID() uuid.UUID    { return g.subjectID }
func (g *Grant) ResourceType() string    { return g.resourceType }
func (g *Grant) ResourceID() uuid.UUID   { return g.resourceID }
func (g *Grant) Level() Level            { return g.level }
func (g *Grant) Conditions() Conditions  { return g.conditions }
func (g *Grant) GrantedBy() uuid.UUID    { return g.grantedBy }
func (g *Grant) GrantedAt() time.Time    { return g.grantedAt }
func (g *Grant) ExpiresAt() *time.Time   { return g.expiresAt }
func (g *Grant) RevokedAt() *time.Time   { return g.revokedAt }
func (g *Grant) RevokedBy() *uuid.UUID   { return g.revokedBy }
func (g *Grant) IsInherited() bool       { return g.isInherited }
func (g *Grant) InheritancePath() string { return g.inheritancePath }

// ExpiredAt reports whether the grant was already expired at the given
// instant: expires_at strictly before now.
func (g *Grant) ExpiredAt(now time.Time) bool {
	return g.expiresAt != nil && g.expiresAt.Before(now)
}

func (g *Grant) Revoked() bool {
	return g.revokedAt != nil
}
