package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/partition/domain/partition"
	"github.com/iota-uz/franchise-core/pkg/composables"
)

func TestOverlappingValues_RangePartitions(t *testing.T) {
	for _, tc := range []struct {
		name      string
		newValues []string
		oldValues []string
		wantClash bool
	}{
		{
			name:      "monthly sales ranges that intersect",
			newValues: []string{"2025-06-15:2025-07-15"},
			oldValues: []string{"2025-06-01:2025-07-01"},
			wantClash: true,
		},
		{
			name:      "adjacent months share only the exclusive bound",
			newValues: []string{"2025-07-01:2025-08-01"},
			oldValues: []string{"2025-06-01:2025-07-01"},
			wantClash: false,
		},
		{
			name:      "new range fully inside old",
			newValues: []string{"2025-06-10:2025-06-20"},
			oldValues: []string{"2025-06-01:2025-07-01"},
			wantClash: true,
		},
		{
			name:      "disjoint ranges",
			newValues: []string{"2025-01-01:2025-02-01"},
			oldValues: []string{"2025-06-01:2025-07-01"},
			wantClash: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clash := overlappingValues(partition.StrategyRange, tc.newValues, partition.StrategyRange, tc.oldValues)
			if tc.wantClash {
				assert.NotEmpty(t, clash)
			} else {
				assert.Empty(t, clash)
			}
		})
	}
}

func TestOverlappingValues_ListPartitions(t *testing.T) {
	a := uuid.New().String()
	b := uuid.New().String()
	c := uuid.New().String()

	clash := overlappingValues(partition.StrategyList, []string{b, c}, partition.StrategyList, []string{a, b})
	assert.Equal(t, []string{b}, clash)

	clash = overlappingValues(partition.StrategyList, []string{c}, partition.StrategyList, []string{a, b})
	assert.Empty(t, clash)
}

func TestRoute_ListMembership(t *testing.T) {
	tenantID := uuid.New()
	east := partition.New(tenantID, "sales_records", "east", partition.TypeRegion, "region_id", []string{"r-east"}, partition.StrategyList)
	west := partition.New(tenantID, "sales_records", "west", partition.TypeRegion, "region_id", []string{"r-west"}, partition.StrategyList)
	parts := []*partition.Partition{east, west}

	got, err := Route(parts, "r-west")
	require.NoError(t, err)
	assert.Equal(t, west.ID(), got)

	_, err = Route(parts, "r-north")
	require.ErrorIs(t, err, ErrNoPartitionForValue)
}

func TestRoute_RangeBounds(t *testing.T) {
	tenantID := uuid.New()
	june := partition.New(tenantID, "sales_records", "m2025_06", partition.TypeTime, "sale_date", []string{"2025-06-01:2025-07-01"}, partition.StrategyRange)
	july := partition.New(tenantID, "sales_records", "m2025_07", partition.TypeTime, "sale_date", []string{"2025-07-01:2025-08-01"}, partition.StrategyRange)
	parts := []*partition.Partition{june, july}

	got, err := Route(parts, "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, june.ID(), got)

	// The exclusive upper bound belongs to the next partition.
	got, err = Route(parts, "2025-07-01")
	require.NoError(t, err)
	assert.Equal(t, july.ID(), got)

	_, err = Route(parts, "2025-09-01")
	require.ErrorIs(t, err, ErrNoPartitionForValue)
}

func TestRoute_HashIsDeterministic(t *testing.T) {
	tenantID := uuid.New()
	p0 := partition.New(tenantID, "sales_records", "h0", partition.TypeLocation, "location_id", []string{"0", "1"}, partition.StrategyHash)
	p1 := partition.New(tenantID, "sales_records", "h1", partition.TypeLocation, "location_id", []string{"2", "3"}, partition.StrategyHash)
	parts := []*partition.Partition{p0, p1}

	value := uuid.New().String()
	first, err := Route(parts, value)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Route(parts, value)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRoute_EmptyPartitionSet(t *testing.T) {
	_, err := Route(nil, "anything")
	require.ErrorIs(t, err, ErrNoPartitionForValue)
}

func TestRangeBounds(t *testing.T) {
	lo, hi, err := rangeBounds("a:b")
	require.NoError(t, err)
	assert.Equal(t, "a", lo)
	assert.Equal(t, "b", hi)

	_, _, err = rangeBounds("nocolon")
	require.Error(t, err)

	_, _, err = rangeBounds("b:a")
	require.Error(t, err)

	_, _, err = rangeBounds(":x")
	require.Error(t, err)
}

func TestValidateInput(t *testing.T) {
	valid := CreatePartitionInput{
		Table:    "sales_records",
		Name:     "east",
		Type:     partition.TypeRegion,
		Key:      "region_id",
		Values:   []string{"r-east"},
		Strategy: partition.StrategyList,
	}
	require.NoError(t, validateInput(valid))

	bad := valid
	bad.Strategy = "round_robin"
	require.Error(t, validateInput(bad))

	bad = valid
	bad.Values = nil
	require.Error(t, validateInput(bad))

	bad = valid
	bad.Strategy = partition.StrategyRange
	bad.Values = []string{"2025-07-01"}
	require.Error(t, validateInput(bad))

	bad = valid
	bad.Retention = partition.Retention{Enabled: true}
	require.Error(t, validateInput(bad))
}

func TestPartition_Expired(t *testing.T) {
	tenantID := uuid.New()
	now := time.Now().UTC()

	old := partition.New(tenantID, "sales_records", "m2024_01", partition.TypeTime, "sale_date",
		[]string{"2024-01-01:2024-02-01"}, partition.StrategyRange,
		partition.WithRetention(partition.Retention{Enabled: true, RetentionDays: 90}),
		partition.WithCreatedAt(now.AddDate(0, 0, -120)),
	)
	assert.True(t, old.Expired(now))

	fresh := partition.New(tenantID, "sales_records", "m2025_08", partition.TypeTime, "sale_date",
		[]string{"2025-08-01:2025-09-01"}, partition.StrategyRange,
		partition.WithRetention(partition.Retention{Enabled: true, RetentionDays: 90}),
		partition.WithCreatedAt(now.AddDate(0, 0, -10)),
	)
	assert.False(t, fresh.Expired(now))

	// Retention disabled never expires.
	keep := partition.New(tenantID, "sales_records", "keep", partition.TypeCustom, "k",
		[]string{"v"}, partition.StrategyList,
		partition.WithCreatedAt(now.AddDate(-1, 0, 0)),
	)
	assert.False(t, keep.Expired(now))
}

// stubTx satisfies the transaction composable so service calls run against
// the fake repository without a database.
type stubTx struct {
	pgx.Tx
}

type fakePartitionRepo struct {
	partitions map[uuid.UUID]*partition.Partition
	rowCounts  map[string]int64
	stats      map[uuid.UUID]partition.Stats
	archived   []uuid.UUID
	dropped    []uuid.UUID
	locked     []string
	ddl        []string
}

func newFakePartitionRepo() *fakePartitionRepo {
	return &fakePartitionRepo{
		partitions: map[uuid.UUID]*partition.Partition{},
		rowCounts:  map[string]int64{},
		stats:      map[uuid.UUID]partition.Stats{},
	}
}

func (f *fakePartitionRepo) GetByID(_ context.Context, id uuid.UUID) (*partition.Partition, error) {
	p, ok := f.partitions[id]
	if !ok {
		return nil, partition.ErrPartitionNotFound
	}
	return p, nil
}

func (f *fakePartitionRepo) GetByTableKey(_ context.Context, table, key string) ([]*partition.Partition, error) {
	var out []*partition.Partition
	for _, p := range f.partitions {
		if p.Table() == table && p.Key() == key && p.ArchivedAt() == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePartitionRepo) GetAll(context.Context) ([]*partition.Partition, error) {
	var out []*partition.Partition
	for _, p := range f.partitions {
		if p.ArchivedAt() == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePartitionRepo) Create(_ context.Context, p *partition.Partition) (*partition.Partition, error) {
	f.partitions[p.ID()] = p
	return p, nil
}

func (f *fakePartitionRepo) MarkArchived(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	f.archived = append(f.archived, id)
	delete(f.partitions, id)
	return nil
}

func (f *fakePartitionRepo) Drop(_ context.Context, id uuid.UUID) error {
	f.dropped = append(f.dropped, id)
	delete(f.partitions, id)
	return nil
}

func (f *fakePartitionRepo) UpdateStats(_ context.Context, id uuid.UUID, stats partition.Stats) error {
	f.stats[id] = stats
	return nil
}

func (f *fakePartitionRepo) CountRows(_ context.Context, table string) (int64, error) {
	return f.rowCounts[table], nil
}

func (f *fakePartitionRepo) LockTable(_ context.Context, table string) error {
	f.locked = append(f.locked, table)
	return nil
}

func (f *fakePartitionRepo) ExecDDL(_ context.Context, ddl string) error {
	f.ddl = append(f.ddl, ddl)
	return nil
}

func serviceContext(tenantID uuid.UUID) context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithTenantID(ctx, tenantID)
}

func TestCreatePartition_RejectsStrategyMismatch(t *testing.T) {
	tenantID := uuid.New()
	repo := newFakePartitionRepo()
	svc := NewPartitionService(repo)
	ctx := serviceContext(tenantID)

	_, err := svc.CreatePartition(ctx, CreatePartitionInput{
		Table:    "sales_records",
		Name:     "m2025_06",
		Type:     partition.TypeTime,
		Key:      "sale_date",
		Values:   []string{"2025-06-01:2025-07-01"},
		Strategy: partition.StrategyRange,
	})
	require.NoError(t, err)

	// A list partition over the same (table, key) would make routing
	// ambiguous and must be rejected.
	_, err = svc.CreatePartition(ctx, CreatePartitionInput{
		Table:    "sales_records",
		Name:     "special_days",
		Type:     partition.TypeTime,
		Key:      "sale_date",
		Values:   []string{"2025-12-25"},
		Strategy: partition.StrategyList,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "conflicts with partition")
	require.Len(t, repo.partitions, 1)

	// A different key on the same table is an independent partition set.
	_, err = svc.CreatePartition(ctx, CreatePartitionInput{
		Table:    "sales_records",
		Name:     "by_location",
		Type:     partition.TypeLocation,
		Key:      "location_id",
		Values:   []string{uuid.New().String()},
		Strategy: partition.StrategyList,
	})
	require.NoError(t, err)
}

func TestCreatePartition_RejectsOverlapAgainstRegistered(t *testing.T) {
	tenantID := uuid.New()
	repo := newFakePartitionRepo()
	svc := NewPartitionService(repo)
	ctx := serviceContext(tenantID)

	_, err := svc.CreatePartition(ctx, CreatePartitionInput{
		Table:    "sales_records",
		Name:     "m2025_06",
		Type:     partition.TypeTime,
		Key:      "sale_date",
		Values:   []string{"2025-06-01:2025-07-01"},
		Strategy: partition.StrategyRange,
	})
	require.NoError(t, err)
	require.Contains(t, repo.ddl[0], "sales_records_m2025_06")

	_, err = svc.CreatePartition(ctx, CreatePartitionInput{
		Table:    "sales_records",
		Name:     "overlapping",
		Type:     partition.TypeTime,
		Key:      "sale_date",
		Values:   []string{"2025-06-15:2025-07-15"},
		Strategy: partition.StrategyRange,
	})
	var overlapErr *OverlappingPartitionError
	require.ErrorAs(t, err, &overlapErr)
	require.Equal(t, "m2025_06", overlapErr.PartitionName)
	require.Len(t, repo.partitions, 1)
}

func TestRunRetentionSweep_SweepsExpiredAndRefreshesStats(t *testing.T) {
	tenantID := uuid.New()
	now := time.Now().UTC()
	repo := newFakePartitionRepo()
	svc := NewPartitionService(repo)
	ctx := serviceContext(tenantID)

	retention := partition.Retention{Enabled: true, RetentionDays: 90}
	toArchive := partition.New(tenantID, "sales_records", "m2025_01", partition.TypeTime, "sale_date",
		[]string{"2025-01-01:2025-02-01"}, partition.StrategyRange,
		partition.WithRetention(partition.Retention{Enabled: true, RetentionDays: 90, ArchiveTarget: "sales_archive"}),
		partition.WithCreatedAt(now.AddDate(0, 0, -120)),
	)
	toDrop := partition.New(tenantID, "sales_records", "m2025_02", partition.TypeTime, "sale_date",
		[]string{"2025-02-01:2025-03-01"}, partition.StrategyRange,
		partition.WithRetention(retention),
		partition.WithCreatedAt(now.AddDate(0, 0, -100)),
	)
	live := partition.New(tenantID, "sales_records", "m2025_08", partition.TypeTime, "sale_date",
		[]string{"2025-08-01:2025-09-01"}, partition.StrategyRange,
		partition.WithRetention(retention),
		partition.WithCreatedAt(now.AddDate(0, 0, -10)),
	)
	for _, p := range []*partition.Partition{toArchive, toDrop, live} {
		repo.partitions[p.ID()] = p
	}
	repo.rowCounts["sales_records_m2025_08"] = 1337

	report, err := svc.RunRetentionSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Archived: 1, Dropped: 1}, report)
	require.Equal(t, []uuid.UUID{toArchive.ID()}, repo.archived)
	require.Equal(t, []uuid.UUID{toDrop.ID()}, repo.dropped)
	require.Contains(t, repo.locked, "sales_records")

	// The surviving partition's stats reflect this sweep.
	stats, ok := repo.stats[live.ID()]
	require.True(t, ok)
	require.Equal(t, int64(1337), stats.RowCount)
	require.NotNil(t, stats.LastSweptAt)
	require.WithinDuration(t, now, *stats.LastSweptAt, time.Minute)

	// Rerunning the sweep finds nothing left to expire.
	report, err = svc.RunRetentionSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{}, report)
}
