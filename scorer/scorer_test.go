package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/healthwatch/collector"
)

func ptrOf(v float64) *float64 { return &v }

func TestCalculateScores(t *testing.T) {
	tests := []struct {
		name    string
		metrics collector.MetricsData
		gaps    int
		want    HealthScores
	}{
		{
			name: "all healthy",
			metrics: collector.MetricsData{
				ErrorRate:    ptrOf(0.0005),
				Availability: ptrOf(99.95),
				LatencyP99:   ptrOf(80),
			},
			gaps: 0,
			want: HealthScores{Overall: 100, Reliability: 100, Performance: 100, Observability: 100},
		},
		{
			name:    "no metrics scores as average",
			metrics: collector.MetricsData{},
			gaps:    3,
			want:    HealthScores{Overall: 53, Reliability: 50, Performance: 50, Observability: 60},
		},
		{
			name: "degraded service",
			metrics: collector.MetricsData{
				ErrorRate:    ptrOf(0.08),
				Availability: ptrOf(94.0),
				LatencyP99:   ptrOf(1200),
			},
			gaps: 12,
			want: HealthScores{Overall: 23, Reliability: 20, Performance: 30, Observability: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateScores(tt.metrics, tt.gaps)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreErrorRateThresholds(t *testing.T) {
	tests := []struct {
		rate *float64
		want int
	}{
		{nil, 25},
		{ptrOf(0.0009), 50},
		{ptrOf(0.001), 40},
		{ptrOf(0.009), 40},
		{ptrOf(0.01), 25},
		{ptrOf(0.049), 25},
		{ptrOf(0.05), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoreErrorRate(tt.rate))
	}
}

func TestScoreAvailabilityThresholds(t *testing.T) {
	tests := []struct {
		availability *float64
		want         int
	}{
		{nil, 25},
		{ptrOf(99.9), 50},
		{ptrOf(99.5), 45},
		{ptrOf(99.49), 40},
		{ptrOf(99.0), 40},
		{ptrOf(98.9), 25},
		{ptrOf(95.0), 25},
		{ptrOf(94.99), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoreAvailability(tt.availability))
	}
}

func TestScorePerformanceThresholds(t *testing.T) {
	tests := []struct {
		p99  *float64
		want int
	}{
		{nil, 50},
		{ptrOf(99.9), 100},
		{ptrOf(100), 90},
		{ptrOf(199), 90},
		{ptrOf(200), 70},
		{ptrOf(499), 70},
		{ptrOf(500), 50},
		{ptrOf(999), 50},
		{ptrOf(1000), 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scorePerformance(tt.p99))
	}
}

func TestScoreObservabilityThresholds(t *testing.T) {
	tests := []struct {
		gaps int
		want int
	}{
		{0, 100},
		{1, 80},
		{2, 80},
		{3, 60},
		{5, 60},
		{6, 40},
		{10, 40},
		{11, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoreObservability(tt.gaps))
	}
}
