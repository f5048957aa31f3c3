package partition

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLocation Type = "location"
	TypeRegion   Type = "region"
	TypeTime     Type = "time"
	TypeCustom   Type = "custom"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLocation, TypeRegion, TypeTime, TypeCustom:
		return true
	}
	return false
}

type Strategy string

const (
	StrategyRange Strategy = "range"
	StrategyHash  Strategy = "hash"
	StrategyList  Strategy = "list"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyRange, StrategyHash, StrategyList:
		return true
	}
	return false
}

// Retention controls the scheduled sweep. ArchiveTarget empty means rows are
// dropped instead of archived.
type Retention struct {
	Enabled       bool   `json:"enabled"`
	RetentionDays int    `json:"retention_days"`
	ArchiveTarget string `json:"archive_target,omitempty"`
}

type Stats struct {
	RowCount    int64      `json:"row_count"`
	LastSweptAt *time.Time `json:"last_swept_at,omitempty"`
}

var ErrPartitionNotFound = errors.New("partition not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Partition, error)
	// GetByTableKey returns every live partition registered for the
	// (table, key) pair, archived ones excluded.
	GetByTableKey(ctx context.Context, table, key string) ([]*Partition, error)
	GetAll(ctx context.Context) ([]*Partition, error)
	Create(ctx context.Context, p *Partition) (*Partition, error)
	MarkArchived(ctx context.Context, id uuid.UUID, target string, at time.Time) error
	Drop(ctx context.Context, id uuid.UUID) error
	UpdateStats(ctx context.Context, id uuid.UUID, stats Stats) error
	// CountRows reports the current row count of a physical partition table.
	CountRows(ctx context.Context, table string) (int64, error)
	// LockTable takes a transaction-scoped advisory lock keyed on the table
	// name so registration and sweeps never interleave per table.
	LockTable(ctx context.Context, table string) error
	// ExecDDL runs the physical partition DDL inside the current transaction.
	ExecDDL(ctx context.Context, ddl string) error
}

type Option func(p *Partition)

func WithID(id uuid.UUID) Option {
	return func(p *Partition) {
		p.id = id
	}
}

func WithRetention(r Retention) Option {
	return func(p *Partition) {
		p.retention = r
	}
}

func WithStats(s Stats) Option {
	return func(p *Partition) {
		p.stats = s
	}
}

func WithArchivedAt(t *time.Time) Option {
	return func(p *Partition) {
		p.archivedAt = t
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(p *Partition) {
		p.createdAt = t
	}
}

// Partition is registered metadata for one physical partition of a tenant
// table: which values of the partition key it owns and under which strategy.
type Partition struct {
	id         uuid.UUID
	tenantID   uuid.UUID
	table      string
	name       string
	partType   Type
	key        string
	values     []string
	strategy   Strategy
	retention  Retention
	stats      Stats
	archivedAt *time.Time
	createdAt  time.Time
}

func New(tenantID uuid.UUID, table, name string, partType Type, key string, values []string, strategy Strategy, opts ...Option) *Partition {
	p := &Partition{
		id:        uuid.New(),
		tenantID:  tenantID,
		table:     table,
		name:      name,
		partType:  partType,
		key:       key,
		values:    values,
		strategy:  strategy,
		createdAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Partition) ID() uuid.UUID {
	return p.id
}

func (p *Partition) TenantID() uuid.UUID {
	return p.tenantID
}

func (p *Partition) Table() string {
	return p.table
}

func (p *Partition) Name() string {
	return p.name
}

func (p *Partition) Type() Type {
	return p.partType
}

func (p *Partition) Key() string {
	return p.key
}

func (p *Partition) Values() []string {
	return p.values
}

func (p *Partition) Strategy() Strategy {
	return p.strategy
}

func (p *Partition) Retention() Retention {
	return p.retention
}

func (p *Partition) Stats() Stats {
	return p.stats
}

func (p *Partition) ArchivedAt() *time.Time {
	return p.archivedAt
}

func (p *Partition) CreatedAt() time.Time {
	return p.createdAt
}

// Expired reports whether the partition's data has outlived its retention
// window at the given instant.
func (p *Partition) Expired(now time.Time) bool {
	if !p.retention.Enabled || p.retention.RetentionDays <= 0 {
		return false
	}
	cutoff := p.createdAt.AddDate(0, 0, p.retention.RetentionDays)
	return now.After(cutoff)
}
