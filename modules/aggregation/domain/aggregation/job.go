package aggregation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimeWindow bounds the records an aggregation reads: Start inclusive, End
// exclusive.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// LocationShare is one location's slice of a metric total.
type LocationShare struct {
	LocationID uuid.UUID       `json:"location_id"`
	Value      decimal.Decimal `json:"value"`
	// Percentage is value/total*100, or 0 when the total is 0.
	Percentage float64 `json:"percentage"`
}

type MetricResult struct {
	Total     decimal.Decimal `json:"total"`
	Average   decimal.Decimal `json:"average"`
	Breakdown []LocationShare `json:"breakdown"`
}

type InsightKind string

const (
	InsightDeviation InsightKind = "deviation"
	InsightBenchmark InsightKind = "benchmark"
)

type Insight struct {
	Kind       InsightKind `json:"kind"`
	Metric     string      `json:"metric"`
	LocationID uuid.UUID   `json:"location_id"`
	Rating     string      `json:"rating,omitempty"`
	Message    string      `json:"message"`
}

type Option func(j *Job)

func WithID(id uuid.UUID) Option {
	return func(j *Job) {
		j.id = id
	}
}

func WithDescription(d string) Option {
	return func(j *Job) {
		j.description = d
	}
}

func WithResults(r map[string]MetricResult) Option {
	return func(j *Job) {
		j.results = r
	}
}

func WithInsights(ins []Insight) Option {
	return func(j *Job) {
		j.insights = ins
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(j *Job) {
		j.createdAt = t
	}
}

// Job is one completed cross-location aggregation: the request parameters
// plus the computed per-metric results and insights.
type Job struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	name        string
	description string
	locationIDs []uuid.UUID
	metrics     []string
	window      TimeWindow
	results     map[string]MetricResult
	insights    []Insight
	createdBy   uuid.UUID
	createdAt   time.Time
}

func NewJob(tenantID uuid.UUID, name string, locationIDs []uuid.UUID, metrics []string, window TimeWindow, createdBy uuid.UUID, opts ...Option) *Job {
	j := &Job{
		id:          uuid.New(),
		tenantID:    tenantID,
		name:        name,
		locationIDs: locationIDs,
		metrics:     metrics,
		window:      window,
		createdBy:   createdBy,
		createdAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) ID() uuid.UUID {
	return j.id
}

func (j *Job) TenantID() uuid.UUID {
	return j.tenantID
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) Description() string {
	return j.description
}

func (j *Job) LocationIDs() []uuid.UUID {
	return j.locationIDs
}

func (j *Job) Metrics() []string {
	return j.metrics
}

func (j *Job) Window() TimeWindow {
	return j.window
}

func (j *Job) Results() map[string]MetricResult {
	return j.results
}

func (j *Job) Insights() []Insight {
	return j.insights
}

func (j *Job) CreatedBy() uuid.UUID {
	return j.createdBy
}

func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

// MetricReader fetches raw per-location values for one metric over a window.
// Implementations must honor the context deadline.
type MetricReader interface {
	FetchMetric(ctx context.Context, locationIDs []uuid.UUID, metric string, window TimeWindow) (map[uuid.UUID]decimal.Decimal, error)
}

// RecordWriter ingests raw metric records.
type RecordWriter interface {
	WriteRecord(ctx context.Context, locationID uuid.UUID, metric string, value decimal.Decimal, recordedAt time.Time) error
}

type JobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	Create(ctx context.Context, j *Job) error
}
