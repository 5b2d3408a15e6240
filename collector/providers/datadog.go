package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360studio/healthwatch/collector"
)

// datadogDomains maps a Datadog region code to its API domain.
var datadogDomains = map[string]string{
	"us1":     "datadoghq.com",
	"us3":     "us3.datadoghq.com",
	"us5":     "us5.datadoghq.com",
	"eu1":     "datadoghq.eu",
	"ap1":     "ap1.datadoghq.com",
	"us1-fed": "ddog-gov.com",
}

// DatadogDomain resolves a region code to the full API domain, falling
// back to the us1 domain for unknown regions.
func DatadogDomain(region string) string {
	if domain, ok := datadogDomains[strings.ToLower(region)]; ok {
		return domain
	}
	return "datadoghq.com"
}

// Datadog pulls logs from the Logs Search API and metrics from the
// timeseries query API.
type Datadog struct {
	baseURL string
	apiKey  string
	appKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// DatadogOption configures a Datadog adapter.
type DatadogOption func(*Datadog)

// WithDatadogBaseURL overrides the API base URL. Used in tests.
func WithDatadogBaseURL(baseURL string) DatadogOption {
	return func(d *Datadog) {
		d.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewDatadog creates a Datadog adapter for one workspace integration.
func NewDatadog(apiKey, appKey, region string, opts ...DatadogOption) *Datadog {
	d := &Datadog{
		baseURL: "https://api." + DatadogDomain(region),
		apiKey:  apiKey,
		appKey:  appKey,
		client:  &http.Client{Timeout: requestTimeout},
		breaker: newBreaker("datadog"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kind implements collector.LogSource and collector.MetricSource.
func (d *Datadog) Kind() collector.Kind { return collector.KindDatadog }

func (d *Datadog) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("DD-API-KEY", d.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", d.appKey)
	req.Header.Set("Content-Type", "application/json")
	return doJSON(d.client, d.breaker, "datadog", req, out)
}

type datadogLogsResponse struct {
	Data []struct {
		Attributes struct {
			Timestamp string `json:"timestamp"`
			Host      string `json:"host"`
			Service   string `json:"service"`
			Status    string `json:"status"`
			Message   string `json:"message"`
		} `json:"attributes"`
	} `json:"data"`
}

// Logs searches Datadog logs with a service:<name> filter query.
func (d *Datadog) Logs(ctx context.Context, q collector.Query, limit int) ([]collector.LogEntry, error) {
	body := map[string]any{
		"filter": map[string]any{
			"query": "service:" + q.ServiceName,
			"from":  q.WeekStart.UnixMilli(),
			"to":    q.WeekEnd.UnixMilli(),
		},
		"sort": "desc",
		"page": map[string]any{"limit": limit},
	}

	var resp datadogLogsResponse
	if err := d.postJSON(ctx, "/api/v2/logs/events/search", body, &resp); err != nil {
		return nil, err
	}

	logs := make([]collector.LogEntry, 0, len(resp.Data))
	for _, entry := range resp.Data {
		attrs := entry.Attributes

		timestamp := time.Now().UTC()
		if attrs.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339, attrs.Timestamp); err == nil {
				timestamp = ts.UTC()
			}
		}

		level := "INFO"
		if attrs.Status != "" {
			level = strings.ToUpper(attrs.Status)
		}

		attributes := make(map[string]string)
		if attrs.Service != "" {
			attributes["service"] = attrs.Service
		}
		if attrs.Host != "" {
			attributes["host"] = attrs.Host
		}

		logs = append(logs, collector.LogEntry{
			Timestamp:  timestamp,
			Level:      level,
			Message:    attrs.Message,
			Service:    attrs.Service,
			Attributes: attributes,
		})
	}
	return logs, nil
}

type datadogTimeseriesResponse struct {
	Data struct {
		Attributes struct {
			Times  []int64     `json:"times"`
			Values [][]float64 `json:"values"`
		} `json:"attributes"`
	} `json:"data"`
	Errors any `json:"errors"`
}

// queryAvg runs one timeseries query and averages every returned point.
func (d *Datadog) queryAvg(ctx context.Context, query string, q collector.Query) (float64, bool) {
	body := map[string]any{
		"data": map[string]any{
			"type": "timeseries_request",
			"attributes": map[string]any{
				"formulas": []map[string]any{{"formula": "a"}},
				"queries": []map[string]any{{
					"data_source": "metrics",
					"query":       query,
					"name":        "a",
				}},
				"from": q.WeekStart.UnixMilli(),
				"to":   q.WeekEnd.UnixMilli(),
			},
		},
	}

	var resp datadogTimeseriesResponse
	if err := d.postJSON(ctx, "/api/v2/query/timeseries", body, &resp); err != nil {
		return 0, false
	}

	var values []float64
	for _, series := range resp.Data.Attributes.Values {
		values = append(values, series...)
	}
	return avg(values)
}

// Metrics queries APM trace metrics for the golden-signal set. Latency
// comes back in nanoseconds and is converted to milliseconds; error rate
// is a percentage and availability is derived as its complement.
func (d *Datadog) Metrics(ctx context.Context, q collector.Query) (collector.Sample, error) {
	var sample collector.Sample

	latencyQuery := fmt.Sprintf("avg:trace.http.request.duration.by.service.99p{service:%s}", q.ServiceName)
	if v, ok := d.queryAvg(ctx, latencyQuery, q); ok {
		sample.LatencyP99 = ptr(v / 1_000_000)
	}

	errorQuery := fmt.Sprintf(
		"sum:trace.http.request.errors{service:%s}.as_rate() / sum:trace.http.request.hits{service:%s}.as_rate() * 100",
		q.ServiceName, q.ServiceName)
	if v, ok := d.queryAvg(ctx, errorQuery, q); ok {
		sample.ErrorRate = ptr(v)
		sample.Availability = ptr(100.0 - v)
	}

	throughputQuery := fmt.Sprintf("sum:trace.http.request.hits{service:%s}.as_rate()", q.ServiceName)
	if v, ok := d.queryAvg(ctx, throughputQuery, q); ok {
		sample.Throughput = ptr(v * 60)
	}
	return sample, nil
}
