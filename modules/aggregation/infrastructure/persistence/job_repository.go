package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/franchise-core/modules/aggregation/domain/aggregation"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

var ErrJobNotFound = errors.New("aggregation job not found")

type JobRepository struct{}

func NewJobRepository() aggregation.JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*aggregation.Job, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var (
		tenantID    uuid.UUID
		name        string
		description string
		locationIDs []uuid.UUID
		metrics     []string
		windowRaw   []byte
		resultsRaw  []byte
		insightsRaw []byte
		createdBy   uuid.UUID
		createdAt   time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT tenant_id, name, description, location_ids, metrics, time_window, results, insights, created_by, created_at
		FROM aggregation_jobs
		WHERE id = $1
	`, id).Scan(&tenantID, &name, &description, &locationIDs, &metrics, &windowRaw, &resultsRaw, &insightsRaw, &createdBy, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, errors.Wrap(err, "failed to query aggregation job")
	}

	var window aggregation.TimeWindow
	if err := json.Unmarshal(windowRaw, &window); err != nil {
		return nil, errors.Wrap(err, "failed to decode job time window")
	}
	var results map[string]aggregation.MetricResult
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &results); err != nil {
			return nil, errors.Wrap(err, "failed to decode job results")
		}
	}
	var insights []aggregation.Insight
	if len(insightsRaw) > 0 {
		if err := json.Unmarshal(insightsRaw, &insights); err != nil {
			return nil, errors.Wrap(err, "failed to decode job insights")
		}
	}

	return aggregation.NewJob(tenantID, name, locationIDs, metrics, window, createdBy,
		aggregation.WithID(id),
		aggregation.WithDescription(description),
		aggregation.WithResults(results),
		aggregation.WithInsights(insights),
		aggregation.WithCreatedAt(createdAt),
	), nil
}

func (r *JobRepository) Create(ctx context.Context, j *aggregation.Job) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	window, err := json.Marshal(j.Window())
	if err != nil {
		return errors.Wrap(err, "failed to encode job time window")
	}
	results, err := json.Marshal(j.Results())
	if err != nil {
		return errors.Wrap(err, "failed to encode job results")
	}
	insights, err := json.Marshal(j.Insights())
	if err != nil {
		return errors.Wrap(err, "failed to encode job insights")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO aggregation_jobs (id, tenant_id, name, description, location_ids, metrics,
		                              time_window, results, insights, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		j.ID(), j.TenantID(), j.Name(), j.Description(), j.LocationIDs(), j.Metrics(),
		window, results, insights, j.CreatedBy(), j.CreatedAt(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert aggregation job")
	}
	return nil
}
