package scorer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/c360studio/healthwatch/collector"
)

// Trend directions reported when a previous score exists.
const (
	TrendUp     = "UP"
	TrendDown   = "DOWN"
	TrendStable = "STABLE"
)

// trendThreshold is how far a score must move before the trend leaves
// STABLE.
const trendThreshold = 5

// Default SLO targets for the real indicator path. Throughput is tracked
// without a target.
const (
	availabilityTarget = 99.9  // percent
	latencyP99Target   = 300.0 // milliseconds
	errorRateTarget    = 1.0   // percent
)

// SLIData is one calculated service level indicator.
type SLIData struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	Score         int    `json:"score"`
	PreviousScore *int   `json:"previous_score,omitempty"`
	Trend         string `json:"trend,omitempty"`
	Target        string `json:"target,omitempty"`
	Actual        string `json:"actual,omitempty"`
	Unit          string `json:"unit,omitempty"`
	DataSource    string `json:"data_source,omitempty"`
	QueryUsed     string `json:"query_used,omitempty"`
	Analysis      string `json:"analysis,omitempty"`
}

// Indicator calculates the SLI set for a review, comparing against the
// previous review's scores for trend direction.
type Indicator struct {
	logger *slog.Logger
	mock   bool
}

// IndicatorOption configures an Indicator.
type IndicatorOption func(*Indicator)

// WithIndicatorLogger sets the logger used by the indicator.
func WithIndicatorLogger(logger *slog.Logger) IndicatorOption {
	return func(i *Indicator) {
		i.logger = logger
	}
}

// WithMockSLIs switches the indicator to deterministic mock generation
// for demo workspaces without observability backends.
func WithMockSLIs(enabled bool) IndicatorOption {
	return func(i *Indicator) {
		i.mock = enabled
	}
}

// NewIndicator creates an SLI indicator.
func NewIndicator(opts ...IndicatorOption) *Indicator {
	i := &Indicator{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Calculate returns the SLIs for one review window. previousScores maps
// SLI name to the score the service's previous completed review recorded;
// it may be nil for a first review.
func (i *Indicator) Calculate(metrics collector.MetricsData, serviceName string, previousScores map[string]int) []SLIData {
	if i.mock {
		i.logger.Info("generating mock SLIs", "service", serviceName)
		return i.mockSLIs(serviceName, previousScores)
	}

	return []SLIData{
		availabilitySLI(metrics, previousScores),
		latencySLI(metrics, previousScores),
		errorRateSLI(metrics, previousScores),
		throughputSLI(metrics, previousScores),
	}
}

// metricValue dereferences a metric pointer, reporting NaN as missing.
func metricValue(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) {
		return 0, false
	}
	return *v, true
}

// previousScore looks up the prior score recorded under an SLI name.
func previousScore(previous map[string]int, name string) *int {
	if score, ok := previous[name]; ok {
		return &score
	}
	return nil
}

// trend classifies the score change against the previous review.
func trend(current int, previous *int) string {
	if previous == nil {
		return ""
	}
	diff := current - *previous
	switch {
	case diff > trendThreshold:
		return TrendUp
	case diff < -trendThreshold:
		return TrendDown
	default:
		return TrendStable
	}
}

func availabilitySLI(metrics collector.MetricsData, previous map[string]int) SLIData {
	actual, ok := metricValue(metrics.Availability)

	score := 0
	actualText := ""
	analysis := "Availability data not available."
	if ok {
		score = min(100, int((actual/availabilityTarget)*100))
		actualText = fmt.Sprintf("%.2f%%", actual)
		if actual >= availabilityTarget {
			analysis = fmt.Sprintf("Availability of %.2f%% meets the target of %.1f%%.", actual, availabilityTarget)
		} else {
			analysis = fmt.Sprintf("Availability of %.2f%% is %.2f%% below target.", actual, availabilityTarget-actual)
		}
	}

	prev := previousScore(previous, "availability")
	return SLIData{
		Name:          "availability",
		Category:      "reliability",
		Score:         score,
		PreviousScore: prev,
		Trend:         trend(score, prev),
		Target:        fmt.Sprintf("%.1f%%", availabilityTarget),
		Actual:        actualText,
		Unit:          "percent",
		Analysis:      analysis,
	}
}

func latencySLI(metrics collector.MetricsData, previous map[string]int) SLIData {
	actual, ok := metricValue(metrics.LatencyP99)

	score := 0
	actualText := ""
	analysis := "Latency data not available."
	if ok {
		// Lower is better: full marks at zero, none at twice the target.
		score = max(0, min(100, int((1-actual/(latencyP99Target*2))*100)))
		actualText = fmt.Sprintf("%.0fms", actual)
		if actual <= latencyP99Target {
			analysis = fmt.Sprintf("P99 latency of %.0fms is within target of %.0fms.", actual, latencyP99Target)
		} else {
			analysis = fmt.Sprintf("P99 latency of %.0fms exceeds target of %.0fms.", actual, latencyP99Target)
		}
	}

	prev := previousScore(previous, "latency_p99")
	return SLIData{
		Name:          "latency_p99",
		Category:      "performance",
		Score:         score,
		PreviousScore: prev,
		Trend:         trend(score, prev),
		Target:        fmt.Sprintf("%.0fms", latencyP99Target),
		Actual:        actualText,
		Unit:          "ms",
		Analysis:      analysis,
	}
}

func errorRateSLI(metrics collector.MetricsData, previous map[string]int) SLIData {
	actual, ok := metricValue(metrics.ErrorRate)

	score := 0
	actualText := ""
	analysis := "Error rate data not available."
	if ok {
		// The collected rate is a fraction; the target is in percent.
		percent := actual * 100
		score = max(0, min(100, int((1-percent/errorRateTarget)*100)))
		actualText = fmt.Sprintf("%.2f%%", percent)
		if percent <= errorRateTarget {
			analysis = fmt.Sprintf("Error rate of %.2f%% is within target of %.1f%%.", percent, errorRateTarget)
		} else {
			analysis = fmt.Sprintf("Error rate of %.2f%% exceeds target of %.1f%%.", percent, errorRateTarget)
		}
	}

	prev := previousScore(previous, "error_rate")
	return SLIData{
		Name:          "error_rate",
		Category:      "reliability",
		Score:         score,
		PreviousScore: prev,
		Trend:         trend(score, prev),
		Target:        fmt.Sprintf("%.1f%%", errorRateTarget),
		Actual:        actualText,
		Unit:          "percent",
		Analysis:      analysis,
	}
}

func throughputSLI(metrics collector.MetricsData, previous map[string]int) SLIData {
	actual, ok := metricValue(metrics.ThroughputPerMinute)

	// Throughput is tracking-only: the score reflects whether data exists.
	score := 0
	actualText := ""
	analysis := "Throughput data not available."
	if ok {
		score = 100
		actualText = fmt.Sprintf("%.0f req/min", actual)
		analysis = fmt.Sprintf("Service processed %.0f requests per minute.", actual)
	}

	prev := previousScore(previous, "throughput")
	trendText := ""
	if ok {
		trendText = trend(score, prev)
	}
	return SLIData{
		Name:          "throughput",
		Category:      "performance",
		Score:         score,
		PreviousScore: prev,
		Trend:         trendText,
		Actual:        actualText,
		Unit:          "req/min",
		Analysis:      analysis,
	}
}
