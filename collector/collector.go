// Package collector aggregates observability data for a service review
// window from the workspace's configured third-party backends.
//
// Logs are gathered in a fixed provider priority order until the sample
// budget is reached; metrics are merged first-wins across every provider
// that can answer. A failing provider is logged and skipped so partial
// data still produces a usable review.
package collector

import (
	"time"
)

// Kind identifies one observability backend.
type Kind string

const (
	KindGrafana    Kind = "grafana"
	KindDatadog    Kind = "datadog"
	KindNewRelic   Kind = "newrelic"
	KindCloudWatch Kind = "cloudwatch"
)

// kindPriority orders providers for log collection. Lower is tried first.
var kindPriority = map[Kind]int{
	KindGrafana:    0,
	KindDatadog:    1,
	KindNewRelic:   2,
	KindCloudWatch: 3,
}

// MaxLogSamples caps how many log lines are retained per review.
const MaxLogSamples = 1000

// Query describes one collection request.
type Query struct {
	WorkspaceID string
	ServiceName string
	WeekStart   time.Time
	WeekEnd     time.Time
}

// LogEntry is a single normalized log line from any provider.
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Service    string            `json:"service,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MetricsData holds the aggregated golden-signal metrics for the review
// window. Nil fields mean no provider could answer for that metric.
type MetricsData struct {
	LatencyP50          *float64 `json:"latency_p50,omitempty"`
	LatencyP90          *float64 `json:"latency_p90,omitempty"`
	LatencyP99          *float64 `json:"latency_p99,omitempty"`
	ErrorRate           *float64 `json:"error_rate,omitempty"`
	Availability        *float64 `json:"availability,omitempty"`
	ThroughputPerMinute *float64 `json:"throughput_per_minute,omitempty"`
}

// Count returns how many metric fields are populated.
func (m MetricsData) Count() int {
	count := 0
	for _, v := range []*float64{
		m.LatencyP50, m.LatencyP90, m.LatencyP99,
		m.ErrorRate, m.Availability, m.ThroughputPerMinute,
	} {
		if v != nil {
			count++
		}
	}
	return count
}

// Sample is the partial metric set one provider returned. Fields left nil
// were not available from that provider.
type Sample struct {
	LatencyP50   *float64
	LatencyP90   *float64
	LatencyP99   *float64
	ErrorRate    *float64
	Availability *float64
	Throughput   *float64
}

// ErrorData is one fingerprinted error cluster aggregated from the logs.
type ErrorData struct {
	Fingerprint   string    `json:"fingerprint"`
	ErrorType     string    `json:"error_type"`
	MessageSample string    `json:"message_sample"`
	Count         int       `json:"count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Endpoints     []string  `json:"endpoints,omitempty"`
	StackTrace    string    `json:"stack_trace,omitempty"`
}

// CollectedData is the result of one collection pass.
type CollectedData struct {
	Logs        []LogEntry  `json:"logs"`
	LogCount    int         `json:"log_count"`
	Metrics     MetricsData `json:"metrics"`
	MetricCount int         `json:"metric_count"`
	Errors      []ErrorData `json:"errors"`
}
