package scorer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/healthwatch/collector"
)

func sliByName(t *testing.T, slis []SLIData, name string) SLIData {
	t.Helper()
	for _, sli := range slis {
		if sli.Name == name {
			return sli
		}
	}
	t.Fatalf("no SLI named %q", name)
	return SLIData{}
}

func TestCalculateRealSLIs(t *testing.T) {
	metrics := collector.MetricsData{
		Availability:        ptrOf(99.95),
		LatencyP99:          ptrOf(250),
		ErrorRate:           ptrOf(0.005),
		ThroughputPerMinute: ptrOf(1234),
	}

	slis := NewIndicator().Calculate(metrics, "payments", nil)
	require.Len(t, slis, 4)

	avail := sliByName(t, slis, "availability")
	assert.Equal(t, "reliability", avail.Category)
	assert.Equal(t, 100, avail.Score)
	assert.Equal(t, "99.9%", avail.Target)
	assert.Equal(t, "99.95%", avail.Actual)
	assert.Equal(t, "percent", avail.Unit)
	assert.Equal(t, "Availability of 99.95% meets the target of 99.9%.", avail.Analysis)
	assert.Empty(t, avail.Trend)
	assert.Nil(t, avail.PreviousScore)

	latency := sliByName(t, slis, "latency_p99")
	assert.Equal(t, "performance", latency.Category)
	assert.Equal(t, 58, latency.Score)
	assert.Equal(t, "300ms", latency.Target)
	assert.Equal(t, "250ms", latency.Actual)
	assert.Equal(t, "P99 latency of 250ms is within target of 300ms.", latency.Analysis)

	errorRate := sliByName(t, slis, "error_rate")
	assert.Equal(t, 50, errorRate.Score)
	assert.Equal(t, "1.0%", errorRate.Target)
	assert.Equal(t, "0.50%", errorRate.Actual)
	assert.Equal(t, "Error rate of 0.50% is within target of 1.0%.", errorRate.Analysis)

	throughput := sliByName(t, slis, "throughput")
	assert.Equal(t, 100, throughput.Score)
	assert.Empty(t, throughput.Target)
	assert.Equal(t, "1234 req/min", throughput.Actual)
	assert.Equal(t, "Service processed 1234 requests per minute.", throughput.Analysis)
}

func TestCalculateSLIsMissingMetrics(t *testing.T) {
	slis := NewIndicator().Calculate(collector.MetricsData{}, "payments", nil)
	require.Len(t, slis, 4)

	assert.Equal(t, "Availability data not available.", sliByName(t, slis, "availability").Analysis)
	assert.Equal(t, "Latency data not available.", sliByName(t, slis, "latency_p99").Analysis)
	assert.Equal(t, "Error rate data not available.", sliByName(t, slis, "error_rate").Analysis)
	assert.Equal(t, "Throughput data not available.", sliByName(t, slis, "throughput").Analysis)

	for _, sli := range slis {
		assert.Zero(t, sli.Score, sli.Name)
		assert.Empty(t, sli.Actual, sli.Name)
		assert.Empty(t, sli.Trend, sli.Name)
	}
}

func TestCalculateSLIsNaNTreatedAsMissing(t *testing.T) {
	metrics := collector.MetricsData{
		Availability: ptrOf(math.NaN()),
		LatencyP99:   ptrOf(math.NaN()),
	}

	slis := NewIndicator().Calculate(metrics, "payments", nil)

	avail := sliByName(t, slis, "availability")
	assert.Zero(t, avail.Score)
	assert.Equal(t, "Availability data not available.", avail.Analysis)
}

func TestCalculateSLIsDegraded(t *testing.T) {
	metrics := collector.MetricsData{
		Availability:        ptrOf(99.5),
		LatencyP99:          ptrOf(450),
		ErrorRate:           ptrOf(0.015),
		ThroughputPerMinute: ptrOf(80),
	}

	slis := NewIndicator().Calculate(metrics, "payments", nil)

	avail := sliByName(t, slis, "availability")
	assert.Equal(t, 99, avail.Score)
	assert.Equal(t, "Availability of 99.50% is 0.40% below target.", avail.Analysis)

	latency := sliByName(t, slis, "latency_p99")
	assert.Equal(t, 25, latency.Score)
	assert.Equal(t, "P99 latency of 450ms exceeds target of 300ms.", latency.Analysis)

	errorRate := sliByName(t, slis, "error_rate")
	assert.Zero(t, errorRate.Score)
	assert.Equal(t, "1.50%", errorRate.Actual)
	assert.Equal(t, "Error rate of 1.50% exceeds target of 1.0%.", errorRate.Analysis)
}

func TestCalculateSLITrends(t *testing.T) {
	metrics := collector.MetricsData{
		Availability:        ptrOf(99.95), // score 100
		LatencyP99:          ptrOf(250),   // score 58
		ErrorRate:           ptrOf(0.005), // score 50
		ThroughputPerMinute: ptrOf(1234),  // score 100
	}
	previous := map[string]int{
		"availability": 90,
		"latency_p99":  58,
		"error_rate":   80,
		"throughput":   100,
	}

	slis := NewIndicator().Calculate(metrics, "payments", previous)

	assert.Equal(t, TrendUp, sliByName(t, slis, "availability").Trend)
	assert.Equal(t, TrendStable, sliByName(t, slis, "latency_p99").Trend)
	assert.Equal(t, TrendDown, sliByName(t, slis, "error_rate").Trend)
	assert.Equal(t, TrendStable, sliByName(t, slis, "throughput").Trend)

	avail := sliByName(t, slis, "availability")
	require.NotNil(t, avail.PreviousScore)
	assert.Equal(t, 90, *avail.PreviousScore)
}

func TestTrendThreshold(t *testing.T) {
	prev := func(v int) *int { return &v }

	assert.Empty(t, trend(50, nil))
	assert.Equal(t, TrendStable, trend(55, prev(50)))
	assert.Equal(t, TrendUp, trend(56, prev(50)))
	assert.Equal(t, TrendStable, trend(45, prev(50)))
	assert.Equal(t, TrendDown, trend(44, prev(50)))
}

func TestMockSLIsDeterministic(t *testing.T) {
	indicator := NewIndicator(WithMockSLIs(true))

	first := indicator.Calculate(collector.MetricsData{}, "payments", nil)
	second := indicator.Calculate(collector.MetricsData{}, "payments", nil)

	assert.Equal(t, first, second)
}

func TestMockSLIsVaryByService(t *testing.T) {
	indicator := NewIndicator(WithMockSLIs(true))

	payments := indicator.Calculate(collector.MetricsData{}, "payments", nil)
	checkout := indicator.Calculate(collector.MetricsData{}, "checkout", nil)

	assert.NotEqual(t,
		sliByName(t, payments, "availability").Actual,
		sliByName(t, checkout, "availability").Actual)
}

func TestMockSLISetShape(t *testing.T) {
	slis := NewIndicator(WithMockSLIs(true)).Calculate(collector.MetricsData{}, "payments", nil)

	require.Len(t, slis, 6)
	names := make([]string, len(slis))
	for i, sli := range slis {
		names[i] = sli.Name
	}
	assert.Equal(t, []string{
		"availability", "latency_p99", "error_rate",
		"throughput", "error_budget_remaining", "saturation",
	}, names)

	for _, sli := range slis {
		assert.GreaterOrEqual(t, sli.Score, 0, sli.Name)
		assert.LessOrEqual(t, sli.Score, 100, sli.Name)
		assert.NotEmpty(t, sli.Analysis, sli.Name)
		assert.NotEmpty(t, sli.DataSource, sli.Name)
		assert.NotEmpty(t, sli.Actual, sli.Name)
		assert.Empty(t, sli.Trend, sli.Name)
	}

	assert.Equal(t, 100, sliByName(t, slis, "throughput").Score)
	assert.Equal(t, "calculated", sliByName(t, slis, "error_budget_remaining").DataSource)
	assert.Equal(t, "capacity", sliByName(t, slis, "saturation").Category)
}

func TestMockSLIsUsePreviousScores(t *testing.T) {
	previous := map[string]int{"availability": 10}

	slis := NewIndicator(WithMockSLIs(true)).Calculate(collector.MetricsData{}, "payments", previous)

	avail := sliByName(t, slis, "availability")
	require.NotNil(t, avail.PreviousScore)
	assert.Equal(t, 10, *avail.PreviousScore)
	assert.Equal(t, TrendUp, avail.Trend)
}

func TestGroupDigits(t *testing.T) {
	assert.Equal(t, "850", groupDigits(850))
	assert.Equal(t, "1,234", groupDigits(1234))
	assert.Equal(t, "12,500", groupDigits(12500.4))
	assert.Equal(t, "1,234,567", groupDigits(1234567))
}
