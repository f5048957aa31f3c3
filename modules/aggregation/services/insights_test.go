package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/franchise-core/modules/aggregation/domain/aggregation"
)

func TestBenchmarkRating(t *testing.T) {
	for _, tc := range []struct {
		ratio float64
		want  string
	}{
		{1.5, "excellent"},
		{1.2, "excellent"},
		{1.1, "good"},
		{1.0, "good"},
		{0.9, "average"},
		{0.8, "average"},
		{0.79, "poor"},
		{0.1, "poor"},
	} {
		assert.Equal(t, tc.want, benchmarkRating(decimal.NewFromFloat(tc.ratio)), "ratio %v", tc.ratio)
	}
}

func TestBuildInsights_FlagsDeviationsBeyondTwentyPercent(t *testing.T) {
	outlier := uuid.New()
	steady := uuid.New()
	// Mean is 100; 130 deviates by 30%, 95 by 5%.
	results := map[string]aggregation.MetricResult{
		"revenue": {
			Total:   decimal.NewFromInt(225),
			Average: decimal.NewFromInt(100),
			Breakdown: []aggregation.LocationShare{
				{LocationID: outlier, Value: decimal.NewFromInt(130)},
				{LocationID: steady, Value: decimal.NewFromInt(95)},
			},
		},
	}

	insights := buildInsights(results)

	var deviations []aggregation.Insight
	for _, in := range insights {
		if in.Kind == aggregation.InsightDeviation {
			deviations = append(deviations, in)
		}
	}
	require.Len(t, deviations, 1)
	assert.Equal(t, outlier, deviations[0].LocationID)
	assert.Equal(t, "revenue", deviations[0].Metric)
}

func TestBuildInsights_BenchmarkPerLocation(t *testing.T) {
	excellent := uuid.New()
	poor := uuid.New()
	results := map[string]aggregation.MetricResult{
		"revenue": {
			Total:   decimal.NewFromInt(200),
			Average: decimal.NewFromInt(100),
			Breakdown: []aggregation.LocationShare{
				{LocationID: excellent, Value: decimal.NewFromInt(130)},
				{LocationID: poor, Value: decimal.NewFromInt(70)},
			},
		},
	}

	ratings := make(map[uuid.UUID]string)
	for _, in := range buildInsights(results) {
		if in.Kind == aggregation.InsightBenchmark {
			ratings[in.LocationID] = in.Rating
		}
	}
	assert.Equal(t, "excellent", ratings[excellent])
	assert.Equal(t, "poor", ratings[poor])
}

func TestBuildInsights_ZeroMeanYieldsNothing(t *testing.T) {
	results := map[string]aggregation.MetricResult{
		"revenue": {
			Total:   decimal.Zero,
			Average: decimal.Zero,
			Breakdown: []aggregation.LocationShare{
				{LocationID: uuid.New(), Value: decimal.Zero},
			},
		},
	}
	assert.Empty(t, buildInsights(results))
}
