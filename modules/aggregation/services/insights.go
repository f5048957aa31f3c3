package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/franchise-core/modules/aggregation/domain/aggregation"
)

// deviationThreshold flags a location whose value strays from the mean by
// more than 20% of the mean.
var deviationThreshold = decimal.NewFromFloat(0.2)

// benchmarkRating maps a location's value/mean ratio onto a rating band.
func benchmarkRating(ratio decimal.Decimal) string {
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.2)):
		return "excellent"
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return "good"
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(0.8)):
		return "average"
	default:
		return "poor"
	}
}

// buildInsights derives deviation flags and benchmark ratings from computed
// metric results. A zero mean yields no insights for that metric.
func buildInsights(results map[string]aggregation.MetricResult) []aggregation.Insight {
	metrics := make([]string, 0, len(results))
	for metric := range results {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	var insights []aggregation.Insight
	for _, metric := range metrics {
		result := results[metric]
		mean := result.Average
		if mean.IsZero() {
			continue
		}
		maxDeviation := mean.Mul(deviationThreshold).Abs()

		for _, share := range result.Breakdown {
			if share.Value.Sub(mean).Abs().GreaterThan(maxDeviation) {
				direction := "above"
				if share.Value.LessThan(mean) {
					direction = "below"
				}
				insights = append(insights, aggregation.Insight{
					Kind:       aggregation.InsightDeviation,
					Metric:     metric,
					LocationID: share.LocationID,
					Message: fmt.Sprintf(
						"location %s is more than 20%% %s the %s mean (%s vs %s)",
						share.LocationID, direction, metric, share.Value, mean,
					),
				})
			}

			rating := benchmarkRating(share.Value.Div(mean))
			insights = append(insights, aggregation.Insight{
				Kind:       aggregation.InsightBenchmark,
				Metric:     metric,
				LocationID: share.LocationID,
				Rating:     rating,
				Message:    fmt.Sprintf("location %s rates %s on %s", share.LocationID, rating, metric),
			})
		}
	}
	return insights
}
