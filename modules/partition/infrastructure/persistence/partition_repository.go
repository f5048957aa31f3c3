package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/franchise-core/modules/partition/domain/partition"
	"github.com/iota-uz/franchise-core/pkg/composables"
	"github.com/iota-uz/franchise-core/pkg/serrors"
)

const partitionFindQuery = `
SELECT id, tenant_id, table_name, name, partition_type, partition_key, partition_values,
       strategy, retention, stats, archived_at, created_at
FROM table_partitions`

type PartitionRepository struct{}

func NewPartitionRepository() partition.Repository {
	return &PartitionRepository{}
}

func (r *PartitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*partition.Partition, error) {
	partitions, err := r.queryPartitions(ctx, partitionFindQuery+" WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, partition.ErrPartitionNotFound
	}
	return partitions[0], nil
}

func (r *PartitionRepository) GetByTableKey(ctx context.Context, table, key string) ([]*partition.Partition, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryPartitions(ctx,
		partitionFindQuery+` WHERE tenant_id = $1 AND table_name = $2 AND partition_key = $3
		 AND archived_at IS NULL ORDER BY created_at`,
		tenantID, table, key,
	)
}

func (r *PartitionRepository) GetAll(ctx context.Context) ([]*partition.Partition, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryPartitions(ctx,
		partitionFindQuery+" WHERE tenant_id = $1 AND archived_at IS NULL ORDER BY table_name, created_at",
		tenantID,
	)
}

func (r *PartitionRepository) Create(ctx context.Context, p *partition.Partition) (*partition.Partition, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	retention, err := json.Marshal(p.Retention())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode partition retention")
	}
	stats, err := json.Marshal(p.Stats())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode partition stats")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO table_partitions (id, tenant_id, table_name, name, partition_type, partition_key,
		                              partition_values, strategy, retention, stats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		p.ID(),
		p.TenantID(),
		p.Table(),
		p.Name(),
		string(p.Type()),
		p.Key(),
		p.Values(),
		string(p.Strategy()),
		retention,
		stats,
		p.CreatedAt(),
	)
	if err != nil {
		return nil, errors.Wrap(serrors.MapDBError(err), "failed to insert partition")
	}
	return r.GetByID(ctx, p.ID())
}

func (r *PartitionRepository) MarkArchived(ctx context.Context, id uuid.UUID, target string, at time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE table_partitions
		SET archived_at = $1, retention = retention || jsonb_build_object('archive_target', $2::text)
		WHERE id = $3 AND archived_at IS NULL
	`, at, target, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark partition archived")
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PartitionRepository) Drop(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM table_partitions WHERE id = $1", id); err != nil {
		return errors.Wrap(err, "failed to delete partition")
	}
	return nil
}

func (r *PartitionRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats partition.Stats) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "failed to encode partition stats")
	}
	if _, err := tx.Exec(ctx, "UPDATE table_partitions SET stats = $1 WHERE id = $2", encoded, id); err != nil {
		return errors.Wrap(err, "failed to update partition stats")
	}
	return nil
}

func (r *PartitionRepository) CountRows(ctx context.Context, table string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "failed to count rows in %s", table)
	}
	return count, nil
}

// LockTable takes a transaction-scoped advisory lock keyed on the FNV-64a
// hash of the table name. Released automatically at commit or rollback.
func (r *PartitionRepository) LockTable(ctx context.Context, table string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(table))
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(h.Sum64())); err != nil {
		return errors.Wrapf(err, "failed to lock table %s", table)
	}
	return nil
}

func (r *PartitionRepository) ExecDDL(ctx context.Context, ddl string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to execute partition DDL")
	}
	return nil
}

func (r *PartitionRepository) queryPartitions(ctx context.Context, query string, args ...interface{}) ([]*partition.Partition, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var partitions []*partition.Partition
	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan partition row")
		}
		partitions = append(partitions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return partitions, nil
}

func scanPartition(rows pgx.Rows) (*partition.Partition, error) {
	var (
		id           uuid.UUID
		tenantID     uuid.UUID
		table        string
		name         string
		partType     string
		key          string
		values       []string
		strategy     string
		retentionRaw []byte
		statsRaw     []byte
		archivedAt   sql.NullTime
		createdAt    time.Time
	)
	if err := rows.Scan(
		&id, &tenantID, &table, &name, &partType, &key, &values,
		&strategy, &retentionRaw, &statsRaw, &archivedAt, &createdAt,
	); err != nil {
		return nil, err
	}

	var retention partition.Retention
	if len(retentionRaw) > 0 {
		if err := json.Unmarshal(retentionRaw, &retention); err != nil {
			return nil, errors.Wrap(err, "failed to decode partition retention")
		}
	}
	var stats partition.Stats
	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &stats); err != nil {
			return nil, errors.Wrap(err, "failed to decode partition stats")
		}
	}

	opts := []partition.Option{
		partition.WithID(id),
		partition.WithRetention(retention),
		partition.WithStats(stats),
		partition.WithCreatedAt(createdAt),
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		opts = append(opts, partition.WithArchivedAt(&t))
	}

	return partition.New(
		tenantID, table, name, partition.Type(partType), key, values, partition.Strategy(strategy),
		opts...,
	), nil
}
