package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/franchise-core/modules/partition/domain/partition"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

// OverlappingPartitionError names the existing partition whose value set
// collides with the requested one. Creation is rejected wholesale.
type OverlappingPartitionError struct {
	Table         string
	Key           string
	PartitionID   uuid.UUID
	PartitionName string
	Values        []string
}

func (e *OverlappingPartitionError) Error() string {
	return fmt.Sprintf(
		"partition overlap on %s(%s): values [%s] already owned by partition %q (%s)",
		e.Table, e.Key, strings.Join(e.Values, ", "), e.PartitionName, e.PartitionID,
	)
}

var ErrNoPartitionForValue = errors.New("no partition owns the value")

type CreatePartitionInput struct {
	Table     string
	Name      string
	Type      partition.Type
	Key       string
	Values    []string
	Strategy  partition.Strategy
	Retention partition.Retention
}

// SweepReport summarizes one retention sweep run.
type SweepReport struct {
	Archived int
	Dropped  int
}

type PartitionService struct {
	repo partition.Repository
}

func NewPartitionService(repo partition.Repository) *PartitionService {
	return &PartitionService{repo: repo}
}

func (s *PartitionService) GetPartitions(ctx context.Context, table, key string) ([]*partition.Partition, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*partition.Partition, error) {
		return s.repo.GetByTableKey(txCtx, table, key)
	})
}

// CreatePartition validates the requested value set against every live
// partition of the same (table, key), registers the metadata and issues the
// physical DDL in one transaction. The per-table advisory lock keeps
// registration and sweeps mutually exclusive.
func (s *PartitionService) CreatePartition(ctx context.Context, input CreatePartitionInput) (*partition.Partition, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*partition.Partition, error) {
		if err := s.repo.LockTable(txCtx, input.Table); err != nil {
			return nil, err
		}

		existing, err := s.repo.GetByTableKey(txCtx, input.Table, input.Key)
		if err != nil {
			return nil, err
		}
		for _, p := range existing {
			// Routing dispatches on a single strategy per (table, key), so a
			// mixed set must never be registered.
			if p.Strategy() != input.Strategy {
				return nil, fmt.Errorf(
					"strategy %q conflicts with partition %q using %q on %s(%s)",
					input.Strategy, p.Name(), p.Strategy(), input.Table, input.Key,
				)
			}
			if colliding := overlappingValues(input.Strategy, input.Values, p.Strategy(), p.Values()); len(colliding) > 0 {
				return nil, &OverlappingPartitionError{
					Table:         input.Table,
					Key:           input.Key,
					PartitionID:   p.ID(),
					PartitionName: p.Name(),
					Values:        colliding,
				}
			}
		}

		p := partition.New(
			tenantID, input.Table, input.Name, input.Type, input.Key, input.Values, input.Strategy,
			partition.WithRetention(input.Retention),
		)
		created, err := s.repo.Create(txCtx, p)
		if err != nil {
			return nil, err
		}
		if err := s.repo.ExecDDL(txCtx, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)",
			physicalName(input.Table, input.Name), input.Table,
		)); err != nil {
			return nil, errors.Wrap(err, "failed to create physical partition")
		}

		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"table":     input.Table,
			"partition": input.Name,
			"strategy":  input.Strategy,
		}).Info("partition registered")
		recordPartitionCreated(string(input.Strategy))
		return created, nil
	})
}

// RouteQuery returns the partition owning the given key value. Routing is
// deterministic: the same value always lands on the same partition until the
// partition set changes.
func (s *PartitionService) RouteQuery(ctx context.Context, table, key, value string) (uuid.UUID, error) {
	partitions, err := s.GetPartitions(ctx, table, key)
	if err != nil {
		return uuid.Nil, err
	}
	return Route(partitions, value)
}

// RunRetentionSweep archives or drops every partition whose data has
// outlived its retention window and refreshes row-count stats on the
// partitions it leaves in place. Each table is swept in its own transaction
// under the table's advisory lock, so a sweep that dies part-way can simply
// be rerun.
func (s *PartitionService) RunRetentionSweep(ctx context.Context) (SweepReport, error) {
	recordSweepRun()
	now := time.Now().UTC()
	logger := composables.UseLogger(ctx)

	all, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*partition.Partition, error) {
		return s.repo.GetAll(txCtx)
	})
	if err != nil {
		return SweepReport{}, err
	}

	byTable := make(map[string][]*partition.Partition)
	for _, p := range all {
		byTable[p.Table()] = append(byTable[p.Table()], p)
	}

	var report SweepReport
	for table, partitions := range byTable {
		err := composables.InTenantTx(ctx, func(txCtx context.Context) error {
			if err := s.repo.LockTable(txCtx, table); err != nil {
				return err
			}
			for _, p := range partitions {
				if !p.Expired(now) {
					continue
				}
				archived, err := s.sweepPartition(txCtx, p)
				if err != nil {
					return err
				}
				if archived {
					report.Archived++
				} else {
					report.Dropped++
				}
			}
			for _, p := range partitions {
				if p.Expired(now) {
					continue
				}
				if err := s.refreshStats(txCtx, p, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return report, errors.Wrapf(err, "retention sweep failed for table %s", table)
		}
	}

	logger.WithFields(logrus.Fields{
		"archived": report.Archived,
		"dropped":  report.Dropped,
	}).Info("retention sweep finished")
	return report, nil
}

func (s *PartitionService) sweepPartition(ctx context.Context, p *partition.Partition) (archived bool, err error) {
	phys := physicalName(p.Table(), p.Name())
	target := p.Retention().ArchiveTarget
	if target != "" {
		if err := s.repo.ExecDDL(ctx, fmt.Sprintf(
			"INSERT INTO %s SELECT * FROM %s", target, phys,
		)); err != nil {
			return false, errors.Wrap(err, "failed to archive partition rows")
		}
		if err := s.repo.ExecDDL(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", phys)); err != nil {
			return false, err
		}
		if err := s.repo.MarkArchived(ctx, p.ID(), target, time.Now().UTC()); err != nil {
			return false, err
		}
		recordSweepAction("archived")
		return true, nil
	}

	if err := s.repo.ExecDDL(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", phys)); err != nil {
		return false, err
	}
	if err := s.repo.Drop(ctx, p.ID()); err != nil {
		return false, err
	}
	recordSweepAction("dropped")
	return false, nil
}

func (s *PartitionService) refreshStats(ctx context.Context, p *partition.Partition, sweptAt time.Time) error {
	rows, err := s.repo.CountRows(ctx, physicalName(p.Table(), p.Name()))
	if err != nil {
		return errors.Wrapf(err, "failed to refresh stats for partition %s", p.Name())
	}
	return s.repo.UpdateStats(ctx, p.ID(), partition.Stats{
		RowCount:    rows,
		LastSweptAt: &sweptAt,
	})
}

func physicalName(table, name string) string {
	return table + "_" + name
}

func validateInput(input CreatePartitionInput) error {
	if input.Table == "" || input.Name == "" || input.Key == "" {
		return fmt.Errorf("table, name and key are required")
	}
	if !input.Type.Valid() {
		return fmt.Errorf("invalid partition type %q", input.Type)
	}
	if !input.Strategy.Valid() {
		return fmt.Errorf("invalid partition strategy %q", input.Strategy)
	}
	if len(input.Values) == 0 {
		return fmt.Errorf("partition values are required")
	}
	if input.Strategy == partition.StrategyRange {
		for _, v := range input.Values {
			if _, _, err := rangeBounds(v); err != nil {
				return err
			}
		}
	}
	if input.Retention.Enabled && input.Retention.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive when retention is enabled")
	}
	return nil
}

// Route picks the owning partition for a key value among the live partitions
// of one (table, key) pair.
func Route(partitions []*partition.Partition, value string) (uuid.UUID, error) {
	if len(partitions) == 0 {
		return uuid.Nil, ErrNoPartitionForValue
	}

	switch partitions[0].Strategy() {
	case partition.StrategyHash:
		return routeHash(partitions, value)
	case partition.StrategyRange:
		return routeRange(partitions, value)
	case partition.StrategyList:
		return routeList(partitions, value)
	}
	return uuid.Nil, fmt.Errorf("unknown partition strategy %q", partitions[0].Strategy())
}

// routeHash maps the value onto a bucket with FNV-1a modulo the total bucket
// count, then finds the partition owning that bucket.
func routeHash(partitions []*partition.Partition, value string) (uuid.UUID, error) {
	total := 0
	for _, p := range partitions {
		total += len(p.Values())
	}
	if total == 0 {
		return uuid.Nil, ErrNoPartitionForValue
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	bucket := strconv.Itoa(int(h.Sum32() % uint32(total)))

	for _, p := range partitions {
		for _, v := range p.Values() {
			if v == bucket {
				return p.ID(), nil
			}
		}
	}
	return uuid.Nil, errors.Wrapf(ErrNoPartitionForValue, "bucket %s unassigned", bucket)
}

func routeRange(partitions []*partition.Partition, value string) (uuid.UUID, error) {
	for _, p := range partitions {
		for _, bounds := range p.Values() {
			lo, hi, err := rangeBounds(bounds)
			if err != nil {
				return uuid.Nil, err
			}
			if value >= lo && value < hi {
				return p.ID(), nil
			}
		}
	}
	return uuid.Nil, ErrNoPartitionForValue
}

func routeList(partitions []*partition.Partition, value string) (uuid.UUID, error) {
	for _, p := range partitions {
		for _, v := range p.Values() {
			if v == value {
				return p.ID(), nil
			}
		}
	}
	return uuid.Nil, ErrNoPartitionForValue
}

// rangeBounds parses a "lo:hi" bound pair; lo is inclusive, hi exclusive.
func rangeBounds(s string) (lo, hi string, err error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok || lo == "" || hi == "" {
		return "", "", fmt.Errorf("malformed range bounds %q, want \"lo:hi\"", s)
	}
	if lo >= hi {
		return "", "", fmt.Errorf("empty range %q, lower bound must precede upper", s)
	}
	return lo, hi, nil
}

// overlappingValues returns the values of the requested set that collide
// with an existing partition's set. Range sets collide when any two bound
// pairs intersect; hash and list sets collide on shared members.
func overlappingValues(newStrategy partition.Strategy, newValues []string, oldStrategy partition.Strategy, oldValues []string) []string {
	if newStrategy == partition.StrategyRange && oldStrategy == partition.StrategyRange {
		var colliding []string
		for _, nv := range newValues {
			nLo, nHi, err := rangeBounds(nv)
			if err != nil {
				continue
			}
			for _, ov := range oldValues {
				oLo, oHi, err := rangeBounds(ov)
				if err != nil {
					continue
				}
				if nLo < oHi && oLo < nHi {
					colliding = append(colliding, nv)
					break
				}
			}
		}
		return colliding
	}

	existing := make(map[string]struct{}, len(oldValues))
	for _, v := range oldValues {
		existing[v] = struct{}{}
	}
	var colliding []string
	for _, v := range newValues {
		if _, ok := existing[v]; ok {
			colliding = append(colliding, v)
		}
	}
	return colliding
}
