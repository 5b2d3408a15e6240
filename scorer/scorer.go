// Package scorer turns collected metrics and detected observability gaps
// into the health scores and service level indicators of a review.
//
// Scores follow a fixed weighting: reliability counts 40% of the overall
// score, performance and observability 30% each. Reliability itself is
// split evenly between the error rate and availability components.
package scorer

import (
	"github.com/c360studio/healthwatch/collector"
)

// HealthScores holds the component scores of one review, each 0-100.
type HealthScores struct {
	Overall       int `json:"overall"`
	Reliability   int `json:"reliability"`
	Performance   int `json:"performance"`
	Observability int `json:"observability"`
}

// CalculateScores computes health scores from the review window's metrics
// and the total logging + metrics gap count. Missing metrics score as
// average rather than zero so a service without telemetry backends is not
// reported as failing.
func CalculateScores(metrics collector.MetricsData, gapCount int) HealthScores {
	reliability := scoreErrorRate(metrics.ErrorRate) + scoreAvailability(metrics.Availability)
	performance := scorePerformance(metrics.LatencyP99)
	observability := scoreObservability(gapCount)

	return HealthScores{
		Overall:       int(float64(reliability)*0.4 + float64(performance)*0.3 + float64(observability)*0.3),
		Reliability:   reliability,
		Performance:   performance,
		Observability: observability,
	}
}

// scoreErrorRate contributes up to 50 points of the reliability score.
func scoreErrorRate(errorRate *float64) int {
	if errorRate == nil {
		return 25
	}
	switch {
	case *errorRate < 0.001:
		return 50
	case *errorRate < 0.01:
		return 40
	case *errorRate < 0.05:
		return 25
	default:
		return 10
	}
}

// scoreAvailability contributes up to 50 points of the reliability score.
func scoreAvailability(availability *float64) int {
	if availability == nil {
		return 25
	}
	switch {
	case *availability >= 99.9:
		return 50
	case *availability >= 99.5:
		return 45
	case *availability >= 99.0:
		return 40
	case *availability >= 95.0:
		return 25
	default:
		return 10
	}
}

// scorePerformance scores 0-100 from p99 latency in milliseconds.
func scorePerformance(latencyP99 *float64) int {
	if latencyP99 == nil {
		return 50
	}
	switch {
	case *latencyP99 < 100:
		return 100
	case *latencyP99 < 200:
		return 90
	case *latencyP99 < 500:
		return 70
	case *latencyP99 < 1000:
		return 50
	default:
		return 30
	}
}

// scoreObservability scores 0-100 from the number of detected gaps.
func scoreObservability(gapCount int) int {
	switch {
	case gapCount == 0:
		return 100
	case gapCount <= 2:
		return 80
	case gapCount <= 5:
		return 60
	case gapCount <= 10:
		return 40
	default:
		return 20
	}
}
