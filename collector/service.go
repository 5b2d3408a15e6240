package collector

import (
	"context"
	"log/slog"
	"sort"
)

// LogSource is one backend the collector can pull logs from.
type LogSource interface {
	Kind() Kind
	// Logs returns normalized log entries for the query window, at most
	// limit entries.
	Logs(ctx context.Context, q Query, limit int) ([]LogEntry, error)
}

// MetricSource is one backend the collector can pull metrics from.
type MetricSource interface {
	Kind() Kind
	// Metrics returns whatever golden-signal values the backend could
	// answer for the query window.
	Metrics(ctx context.Context, q Query) (Sample, error)
}

// ExecutionContext lists the sources resolved from the workspace's
// configured and healthy integrations. A provider that only supports one
// data kind appears in only one slice.
type ExecutionContext struct {
	LogSources    []LogSource
	MetricSources []MetricSource
}

// Service collects logs, metrics, and fingerprinted errors for a review.
type Service struct {
	logger *slog.Logger
}

// ServiceOption configures a collector Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a collector service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect gathers observability data for one service review window.
// Sources are consulted sequentially in priority order; a source failure
// is logged at warn level and the remaining sources still run.
func (s *Service) Collect(ctx context.Context, ec ExecutionContext, q Query) (*CollectedData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logs := s.collectLogs(ctx, ec.LogSources, q)
	metrics := s.collectMetrics(ctx, ec.MetricSources, q)
	errors := AggregateErrors(logs)

	sampled := logs
	if len(sampled) > MaxLogSamples {
		sampled = sampled[:MaxLogSamples]
	}

	return &CollectedData{
		Logs:        sampled,
		LogCount:    len(logs),
		Metrics:     metrics,
		MetricCount: metrics.Count(),
		Errors:      errors,
	}, nil
}

func (s *Service) collectLogs(ctx context.Context, sources []LogSource, q Query) []LogEntry {
	s.logger.Info("collecting logs", "service", q.ServiceName)

	ordered := make([]LogSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return kindPriority[ordered[i].Kind()] < kindPriority[ordered[j].Kind()]
	})

	var logs []LogEntry
	for _, src := range ordered {
		if len(logs) >= MaxLogSamples {
			break
		}
		got, err := src.Logs(ctx, q, MaxLogSamples-len(logs))
		if err != nil {
			s.logger.Warn("failed to collect logs",
				"provider", src.Kind(), "service", q.ServiceName, "error", err)
			continue
		}
		logs = append(logs, got...)
		s.logger.Info("collected logs", "provider", src.Kind(), "count", len(got))
	}

	if len(logs) == 0 {
		s.logger.Warn("no logs collected", "service", q.ServiceName)
	}
	return logs
}

// collectMetrics consults every source and fills each metric field from
// the first source that returned a value for it, so providers augment
// rather than overwrite each other.
func (s *Service) collectMetrics(ctx context.Context, sources []MetricSource, q Query) MetricsData {
	s.logger.Info("collecting metrics", "service", q.ServiceName)

	ordered := make([]MetricSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return kindPriority[ordered[i].Kind()] < kindPriority[ordered[j].Kind()]
	})

	var merged MetricsData
	for _, src := range ordered {
		sample, err := src.Metrics(ctx, q)
		if err != nil {
			s.logger.Warn("failed to collect metrics",
				"provider", src.Kind(), "service", q.ServiceName, "error", err)
			continue
		}
		mergeSample(&merged, sample)
		s.logger.Info("collected metrics", "provider", src.Kind())
	}
	return merged
}

func mergeSample(dst *MetricsData, src Sample) {
	if dst.LatencyP50 == nil {
		dst.LatencyP50 = src.LatencyP50
	}
	if dst.LatencyP90 == nil {
		dst.LatencyP90 = src.LatencyP90
	}
	if dst.LatencyP99 == nil {
		dst.LatencyP99 = src.LatencyP99
	}
	if dst.ErrorRate == nil {
		dst.ErrorRate = src.ErrorRate
	}
	if dst.Availability == nil {
		dst.Availability = src.Availability
	}
	if dst.ThroughputPerMinute == nil {
		dst.ThroughputPerMinute = src.Throughput
	}
}
