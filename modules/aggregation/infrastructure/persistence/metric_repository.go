package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/franchise-core/modules/aggregation/domain/aggregation"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// metricRollupQuery groups raw records per location over a window. Runs on
// the pool, not the caller's transaction: fetches are read-only and may
// outlive the request that started them.
const metricRollupQuery = `
SELECT location_id, COALESCE(SUM(value), 0)
FROM metric_records
WHERE tenant_id = $1
  AND location_id = ANY($2)
  AND metric = $3
  AND recorded_at >= $4 AND recorded_at < $5
GROUP BY location_id`

type MetricRepository struct{}

func NewMetricRepository() *MetricRepository {
	return &MetricRepository{}
}

func (r *MetricRepository) FetchMetric(ctx context.Context, locationIDs []uuid.UUID, metric string, window aggregation.TimeWindow) (map[uuid.UUID]decimal.Decimal, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, metricRollupQuery, tenantID, locationIDs, metric, window.Start, window.End)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch metric %s", metric)
	}
	defer rows.Close()

	values := make(map[uuid.UUID]decimal.Decimal, len(locationIDs))
	for rows.Next() {
		var (
			locationID uuid.UUID
			value      decimal.Decimal
		)
		if err := rows.Scan(&locationID, &value); err != nil {
			return nil, errors.Wrap(err, "failed to scan metric row")
		}
		values[locationID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return values, nil
}

func (r *MetricRepository) WriteRecord(ctx context.Context, locationID uuid.UUID, metric string, value decimal.Decimal, recordedAt time.Time) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO metric_records (id, tenant_id, location_id, metric, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), tenantID, locationID, metric, value, recordedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert metric record")
	}
	return nil
}
