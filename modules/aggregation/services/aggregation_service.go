package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/franchise-core/modules/aggregation/domain/aggregation"
	"github.com/iota-uz/franchise-core/modules/aggregation/domain/cache"
	"github.com/iota-uz/franchise-core/modules/permission/domain/grant"
	permissionservices "github.com/iota-uz/franchise-core/modules/permission/services"
	"github.com/iota-uz/franchise-core/pkg/composables"
	"github.com/iota-uz/franchise-core/pkg/eventbus"
)

// UpstreamFetchError marks a failed or timed-out record fetch. The whole
// aggregation fails with it; there are no partial results.
type UpstreamFetchError struct {
	Metric string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("upstream fetch for metric %q failed: %v", e.Metric, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

const resourceTypeNode = "hierarchy_node"

// AccessChecker answers whether a user holds a permission level on a
// resource. Satisfied by the permission module's NodeAccessChecker.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID uuid.UUID, resourceType string, resourceID uuid.UUID, required string) (bool, error)
}

// TenantGate enforces plan quotas before expensive work. Satisfied by the
// tenant module's TenantService.
type TenantGate interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, resource string, requested int) error
}

type CreateAggregationInput struct {
	Name        string
	Description string
	LocationIDs []uuid.UUID
	Metrics     []string
	Window      aggregation.TimeWindow
}

type AggregationService struct {
	reader       aggregation.MetricReader
	records      aggregation.RecordWriter
	jobs         aggregation.JobRepository
	cache        cache.Cache
	checker      AccessChecker
	gate         TenantGate
	publisher    eventbus.EventBus
	cachePrefix  string
	cacheTTL     time.Duration
	fetchTimeout time.Duration
}

func NewAggregationService(
	reader aggregation.MetricReader,
	records aggregation.RecordWriter,
	jobs aggregation.JobRepository,
	c cache.Cache,
	checker AccessChecker,
	gate TenantGate,
	publisher eventbus.EventBus,
	cachePrefix string,
	cacheTTL time.Duration,
	fetchTimeout time.Duration,
) *AggregationService {
	return &AggregationService{
		reader:       reader,
		records:      records,
		jobs:         jobs,
		cache:        c,
		checker:      checker,
		gate:         gate,
		publisher:    publisher,
		cachePrefix:  cachePrefix,
		cacheTTL:     cacheTTL,
		fetchTimeout: fetchTimeout,
	}
}

// RecordMetric ingests one raw metric record and announces the write so
// cached aggregations covering the tenant get invalidated.
func (s *AggregationService) RecordMetric(ctx context.Context, locationID uuid.UUID, metric string, value decimal.Decimal, recordedAt time.Time) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.records.WriteRecord(txCtx, locationID, metric, value, recordedAt)
	})
	if err != nil {
		return err
	}
	s.publisher.Publish(aggregation.RecordsWritten{
		TenantID:   tenantID,
		LocationID: locationID,
		Table:      "metric_records",
	})
	return nil
}

func (s *AggregationService) GetAggregation(ctx context.Context, id uuid.UUID) (*aggregation.Job, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*aggregation.Job, error) {
		return s.jobs.GetByID(txCtx, id)
	})
}

// CreateCrossLocationAggregation runs the full pipeline: tenant quota gate,
// per-location permission gate, cached or freshly computed rollup, insight
// derivation, persistence. Gates run before any computation.
func (s *AggregationService) CreateCrossLocationAggregation(ctx context.Context, input CreateAggregationInput) (*aggregation.Job, error) {
	if err := validateAggregationInput(input); err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.gate.CheckQuota(ctx, tenantID, "locations", len(input.LocationIDs)); err != nil {
		return nil, err
	}
	if err := s.checkLocationAccess(ctx, userID, input.LocationIDs); err != nil {
		return nil, err
	}

	key := s.cacheKey(tenantID, input.LocationIDs, input.Metrics, input.Window)
	results, insights, err := s.cachedResults(ctx, key)
	if err != nil {
		results, insights, err = s.computeAndCache(ctx, key, tenantID, input)
		if err != nil {
			recordAggregation("error")
			return nil, err
		}
	}

	job := aggregation.NewJob(
		tenantID, input.Name, input.LocationIDs, input.Metrics, input.Window, userID,
		aggregation.WithDescription(input.Description),
		aggregation.WithResults(results),
		aggregation.WithInsights(insights),
	)
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.jobs.Create(txCtx, job)
	})
	if err != nil {
		return nil, err
	}
	recordAggregation("ok")
	return job, nil
}

// checkLocationAccess requires at least read on every location; every
// offending id is collected so the caller sees the full list at once.
func (s *AggregationService) checkLocationAccess(ctx context.Context, userID uuid.UUID, locationIDs []uuid.UUID) error {
	var denied []uuid.UUID
	for _, locationID := range locationIDs {
		ok, err := s.checker.CheckAccess(ctx, userID, resourceTypeNode, locationID, string(grant.LevelRead))
		if err != nil {
			return err
		}
		if !ok {
			denied = append(denied, locationID)
		}
	}
	if len(denied) > 0 {
		return &permissionservices.AccessDeniedError{
			UserID:       userID,
			ResourceType: resourceTypeNode,
			ResourceIDs:  denied,
			Required:     grant.LevelRead,
		}
	}
	return nil
}

type cachedPayload struct {
	Results  map[string]aggregation.MetricResult `json:"results"`
	Insights []aggregation.Insight               `json:"insights"`
}

func (s *AggregationService) cachedResults(ctx context.Context, key string) (map[string]aggregation.MetricResult, []aggregation.Insight, error) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		recordCacheMiss()
		return nil, nil, err
	}
	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		recordCacheMiss()
		return nil, nil, errors.Wrap(err, "failed to decode cached aggregation")
	}
	recordCacheHit()
	return payload.Results, payload.Insights, nil
}

// computeAndCache runs the rollup on a context detached from the caller.
// If the caller goes away mid-computation the work still finishes and the
// result still lands in the cache; only this caller's response is dropped.
func (s *AggregationService) computeAndCache(ctx context.Context, key string, tenantID uuid.UUID, input CreateAggregationInput) (map[string]aggregation.MetricResult, []aggregation.Insight, error) {
	type outcome struct {
		results  map[string]aggregation.MetricResult
		insights []aggregation.Insight
		err      error
	}

	detached := context.WithoutCancel(ctx)
	out := make(chan outcome, 1)
	go func() {
		results, err := s.computeResults(detached, input)
		if err != nil {
			out <- outcome{err: err}
			return
		}
		insights := buildInsights(results)

		payload, err := json.Marshal(cachedPayload{Results: results, Insights: insights})
		if err == nil {
			if cacheErr := s.cache.Set(detached, key, payload, s.cacheTTL); cacheErr != nil {
				composables.UseLogger(detached).WithError(cacheErr).Warn("failed to cache aggregation result")
			}
		}
		out <- outcome{results: results, insights: insights}
	}()

	select {
	case <-ctx.Done():
		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"name":      input.Name,
		}).Warn("caller gone before aggregation finished, result will be cached anyway")
		return nil, nil, ctx.Err()
	case o := <-out:
		return o.results, o.insights, o.err
	}
}

// computeResults fans out one goroutine per metric, each with its own fetch
// deadline. The first fetch error fails the whole aggregation.
func (s *AggregationService) computeResults(ctx context.Context, input CreateAggregationInput) (map[string]aggregation.MetricResult, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]aggregation.MetricResult, len(input.Metrics))
		errCh   = make(chan error, len(input.Metrics))
	)

	for _, metric := range input.Metrics {
		wg.Add(1)
		go func(metric string) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			values, err := s.reader.FetchMetric(fetchCtx, input.LocationIDs, metric, input.Window)
			if err != nil {
				errCh <- &UpstreamFetchError{Metric: metric, Err: err}
				return
			}

			mu.Lock()
			results[metric] = buildMetricResult(input.LocationIDs, values)
			mu.Unlock()
		}(metric)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	return results, nil
}

// buildMetricResult totals the per-location values, keeping the caller's
// location order in the breakdown. A location with no records contributes 0.
func buildMetricResult(locationIDs []uuid.UUID, values map[uuid.UUID]decimal.Decimal) aggregation.MetricResult {
	total := decimal.Zero
	for _, locationID := range locationIDs {
		total = total.Add(values[locationID])
	}
	average := decimal.Zero
	if len(locationIDs) > 0 {
		average = total.Div(decimal.NewFromInt(int64(len(locationIDs))))
	}

	breakdown := make([]aggregation.LocationShare, 0, len(locationIDs))
	for _, locationID := range locationIDs {
		value := values[locationID]
		percentage := 0.0
		if !total.IsZero() {
			percentage = value.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		breakdown = append(breakdown, aggregation.LocationShare{
			LocationID: locationID,
			Value:      value,
			Percentage: percentage,
		})
	}
	return aggregation.MetricResult{Total: total, Average: average, Breakdown: breakdown}
}

// cacheKey hashes the request parameters; location and metric order never
// changes the key.
func (s *AggregationService) cacheKey(tenantID uuid.UUID, locationIDs []uuid.UUID, metrics []string, window aggregation.TimeWindow) string {
	locations := make([]string, len(locationIDs))
	for i, id := range locationIDs {
		locations[i] = id.String()
	}
	sort.Strings(locations)

	sortedMetrics := make([]string, len(metrics))
	copy(sortedMetrics, metrics)
	sort.Strings(sortedMetrics)

	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%s|%d|%d",
		tenantID,
		strings.Join(locations, ","),
		strings.Join(sortedMetrics, ","),
		window.Start.UnixNano(),
		window.End.UnixNano(),
	)
	return fmt.Sprintf("%s:%s:%s", s.cachePrefix, tenantID, hex.EncodeToString(h.Sum(nil)))
}

// OnRecordsWritten drops every cached aggregation for the tenant whose
// records changed. Subscribed on the event bus at module registration.
func (s *AggregationService) OnRecordsWritten(event aggregation.RecordsWritten) {
	prefix := fmt.Sprintf("%s:%s:", s.cachePrefix, event.TenantID)
	if err := s.cache.DeletePrefix(context.Background(), prefix); err != nil {
		logrus.WithError(err).WithField("tenant_id", event.TenantID).Warn("failed to invalidate aggregation cache")
		return
	}
	recordCacheInvalidation()
}

func validateAggregationInput(input CreateAggregationInput) error {
	if input.Name == "" {
		return fmt.Errorf("aggregation name is required")
	}
	if len(input.LocationIDs) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	if len(input.Metrics) == 0 {
		return fmt.Errorf("at least one metric is required")
	}
	if !input.Window.Valid() {
		return fmt.Errorf("time window start must precede end")
	}
	return nil
}
