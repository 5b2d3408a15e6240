package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogSource struct {
	kind    Kind
	entries []LogEntry
	err     error

	gotLimit int
}

func (f *fakeLogSource) Kind() Kind { return f.kind }

func (f *fakeLogSource) Logs(_ context.Context, _ Query, limit int) ([]LogEntry, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeMetricSource struct {
	kind   Kind
	sample Sample
	err    error
}

func (f *fakeMetricSource) Kind() Kind { return f.kind }

func (f *fakeMetricSource) Metrics(context.Context, Query) (Sample, error) {
	if f.err != nil {
		return Sample{}, f.err
	}
	return f.sample, nil
}

func entriesNamed(kind Kind, n int) []LogEntry {
	out := make([]LogEntry, n)
	for i := range out {
		out[i] = LogEntry{
			Timestamp: time.Now().UTC(),
			Level:     "INFO",
			Message:   fmt.Sprintf("%s line %d", kind, i),
		}
	}
	return out
}

func testQuery() Query {
	return Query{
		WorkspaceID: "ws-1",
		ServiceName: "payments",
		WeekStart:   time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		WeekEnd:     time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
	}
}

func TestCollectOrdersSourcesByPriority(t *testing.T) {
	cloudwatch := &fakeLogSource{kind: KindCloudWatch, entries: entriesNamed(KindCloudWatch, 1)}
	grafana := &fakeLogSource{kind: KindGrafana, entries: entriesNamed(KindGrafana, 1)}

	svc := NewService()
	// Sources deliberately passed out of priority order.
	data, err := svc.Collect(context.Background(), ExecutionContext{
		LogSources: []LogSource{cloudwatch, grafana},
	}, testQuery())

	require.NoError(t, err)
	require.Len(t, data.Logs, 2)
	assert.Contains(t, data.Logs[0].Message, "grafana")
	assert.Contains(t, data.Logs[1].Message, "cloudwatch")
}

func TestCollectToleratesSourceFailure(t *testing.T) {
	failing := &fakeLogSource{kind: KindGrafana, err: errors.New("loki unreachable")}
	working := &fakeLogSource{kind: KindDatadog, entries: entriesNamed(KindDatadog, 3)}

	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{
		LogSources: []LogSource{failing, working},
	}, testQuery())

	require.NoError(t, err)
	assert.Len(t, data.Logs, 3)
	assert.Equal(t, 3, data.LogCount)
}

func TestCollectStopsAtLogBudget(t *testing.T) {
	first := &fakeLogSource{kind: KindGrafana, entries: entriesNamed(KindGrafana, MaxLogSamples)}
	second := &fakeLogSource{kind: KindDatadog, entries: entriesNamed(KindDatadog, 10)}

	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{
		LogSources: []LogSource{first, second},
	}, testQuery())

	require.NoError(t, err)
	assert.Len(t, data.Logs, MaxLogSamples)
	assert.Equal(t, MaxLogSamples, data.LogCount)
	// Second source never got a request.
	assert.Zero(t, second.gotLimit)
}

func TestCollectPassesRemainingBudget(t *testing.T) {
	first := &fakeLogSource{kind: KindGrafana, entries: entriesNamed(KindGrafana, 990)}
	second := &fakeLogSource{kind: KindDatadog, entries: entriesNamed(KindDatadog, 500)}

	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{
		LogSources: []LogSource{first, second},
	}, testQuery())

	require.NoError(t, err)
	assert.Equal(t, MaxLogSamples, second.gotLimit+990)
	assert.Equal(t, MaxLogSamples, len(data.Logs))
}

func TestCollectMergesMetricsFirstWins(t *testing.T) {
	grafana := &fakeMetricSource{kind: KindGrafana, sample: Sample{
		LatencyP99: ptrOf(250.0),
	}}
	datadog := &fakeMetricSource{kind: KindDatadog, sample: Sample{
		LatencyP99:   ptrOf(999.0), // must not overwrite grafana's value
		ErrorRate:    ptrOf(0.5),
		Availability: ptrOf(99.5),
	}}

	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{
		MetricSources: []MetricSource{datadog, grafana},
	}, testQuery())

	require.NoError(t, err)
	require.NotNil(t, data.Metrics.LatencyP99)
	assert.Equal(t, 250.0, *data.Metrics.LatencyP99)
	require.NotNil(t, data.Metrics.ErrorRate)
	assert.Equal(t, 0.5, *data.Metrics.ErrorRate)
	assert.Equal(t, 3, data.MetricCount)
}

func TestCollectAggregatesErrors(t *testing.T) {
	source := &fakeLogSource{kind: KindGrafana, entries: []LogEntry{
		{Timestamp: time.Now(), Level: "ERROR", Message: "TimeoutError: upstream timed out"},
		{Timestamp: time.Now(), Level: "ERROR", Message: "TimeoutError: upstream timed out"},
	}}

	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{
		LogSources: []LogSource{source},
	}, testQuery())

	require.NoError(t, err)
	require.Len(t, data.Errors, 1)
	assert.Equal(t, "TimeoutError", data.Errors[0].ErrorType)
	assert.Equal(t, 2, data.Errors[0].Count)
}

func TestCollectEmptyContext(t *testing.T) {
	svc := NewService()
	data, err := svc.Collect(context.Background(), ExecutionContext{}, testQuery())

	require.NoError(t, err)
	assert.Empty(t, data.Logs)
	assert.Zero(t, data.LogCount)
	assert.Zero(t, data.MetricCount)
	assert.Empty(t, data.Errors)
}

func TestCollectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService()
	_, err := svc.Collect(ctx, ExecutionContext{}, testQuery())

	assert.ErrorIs(t, err, context.Canceled)
}

func ptrOf(v float64) *float64 { return &v }
