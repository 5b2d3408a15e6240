package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360studio/healthwatch/collector"
)

// lokiTimeLayout is RFC3339 with a fixed nine-digit fractional second,
// the format Loki's query_range endpoint accepts.
const lokiTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Grafana pulls logs from Loki and metrics from Prometheus through the
// Grafana datasource proxy API. Datasource UIDs are auto-discovered by
// name and cached for the adapter's lifetime.
type Grafana struct {
	baseURL  string
	apiToken string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker

	mu   sync.Mutex
	uids map[string]string
}

// NewGrafana creates a Grafana adapter for one workspace integration.
func NewGrafana(baseURL, apiToken string) *Grafana {
	return &Grafana{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		client:   &http.Client{Timeout: requestTimeout},
		breaker:  newBreaker("grafana"),
		uids:     make(map[string]string),
	}
}

// Kind implements collector.LogSource and collector.MetricSource.
func (g *Grafana) Kind() collector.Kind { return collector.KindGrafana }

func (g *Grafana) headers(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if g.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiToken)
	}
}

// datasourceUID discovers the UID of the datasource with the given type
// and name from the Grafana API.
func (g *Grafana) datasourceUID(ctx context.Context, dsType, dsName string) (string, error) {
	g.mu.Lock()
	if uid, ok := g.uids[dsType]; ok {
		g.mu.Unlock()
		return uid, nil
	}
	g.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/datasources", nil)
	if err != nil {
		return "", err
	}
	g.headers(req)

	var datasources []struct {
		Name string `json:"name"`
		Type string `json:"type"`
		UID  string `json:"uid"`
	}
	if err := doJSON(g.client, g.breaker, "grafana", req, &datasources); err != nil {
		return "", err
	}

	for _, ds := range datasources {
		if ds.Name == dsName && ds.Type == dsType {
			g.mu.Lock()
			g.uids[dsType] = ds.UID
			g.mu.Unlock()
			return ds.UID, nil
		}
	}
	return "", fmt.Errorf("%s datasource %q not found in grafana", dsType, dsName)
}

type lokiQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][]string        `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Logs queries Loki for the service's log streams in the window. The
// service name is matched against the standard "job" label.
func (g *Grafana) Logs(ctx context.Context, q collector.Query, limit int) ([]collector.LogEntry, error) {
	uid, err := g.datasourceUID(ctx, "loki", "Loki")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", fmt.Sprintf(`{job=%q}`, q.ServiceName))
	params.Set("start", q.WeekStart.UTC().Format(lokiTimeLayout))
	params.Set("end", q.WeekEnd.UTC().Format(lokiTimeLayout))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("direction", "BACKWARD")

	endpoint := fmt.Sprintf("%s/api/datasources/proxy/uid/%s/loki/api/v1/query_range?%s",
		g.baseURL, uid, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	g.headers(req)

	var resp lokiQueryResponse
	if err := doJSON(g.client, g.breaker, "grafana", req, &resp); err != nil {
		return nil, err
	}

	var logs []collector.LogEntry
	for _, stream := range resp.Data.Result {
		for _, pair := range stream.Values {
			if len(pair) != 2 {
				continue
			}
			ns, err := strconv.ParseInt(pair[0], 10, 64)
			if err != nil {
				continue
			}
			message := pair[1]
			logs = append(logs, collector.LogEntry{
				Timestamp:  time.Unix(0, ns).UTC(),
				Level:      collector.DetectLogLevel(message),
				Message:    message,
				Attributes: stream.Stream,
			})
		}
	}
	return logs, nil
}

type promQueryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Values [][2]any `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// promAvg runs one PromQL range query and averages every returned point.
func (g *Grafana) promAvg(ctx context.Context, uid, query string, q collector.Query) (float64, bool) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(q.WeekStart.Unix(), 10))
	params.Set("end", strconv.FormatInt(q.WeekEnd.Unix(), 10))
	params.Set("step", "1h")

	endpoint := fmt.Sprintf("%s/api/datasources/proxy/uid/%s/api/v1/query_range?%s",
		g.baseURL, uid, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false
	}
	g.headers(req)

	var resp promQueryResponse
	if err := doJSON(g.client, g.breaker, "grafana", req, &resp); err != nil {
		return 0, false
	}

	var values []float64
	for _, series := range resp.Data.Result {
		for _, point := range series.Values {
			// Prometheus encodes sample values as strings.
			s, ok := point[1].(string)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
	}
	return avg(values)
}

// Metrics queries Prometheus for the golden-signal set. Latencies are
// converted from seconds to milliseconds, availability from a 0/1 up
// series to a percentage, throughput from per-second to per-minute.
func (g *Grafana) Metrics(ctx context.Context, q collector.Query) (collector.Sample, error) {
	uid, err := g.datasourceUID(ctx, "prometheus", "Prometheus")
	if err != nil {
		return collector.Sample{}, err
	}

	filter := fmt.Sprintf(`{job=%q}`, q.ServiceName)
	var sample collector.Sample

	if v, ok := g.promAvg(ctx, uid,
		fmt.Sprintf("histogram_quantile(0.99, rate(http_request_duration_seconds_bucket%s[5m]))", filter), q); ok {
		sample.LatencyP99 = ptr(v * 1000)
	}
	if v, ok := g.promAvg(ctx, uid,
		fmt.Sprintf("histogram_quantile(0.50, rate(http_request_duration_seconds_bucket%s[5m]))", filter), q); ok {
		sample.LatencyP50 = ptr(v * 1000)
	}
	if v, ok := g.promAvg(ctx, uid,
		fmt.Sprintf(`rate(http_requests_total{status=~"5..",job=%q}[5m])`, q.ServiceName), q); ok {
		sample.ErrorRate = ptr(v)
	}
	if v, ok := g.promAvg(ctx, uid, fmt.Sprintf("up%s", filter), q); ok {
		sample.Availability = ptr(v * 100)
	}
	if v, ok := g.promAvg(ctx, uid,
		fmt.Sprintf("sum(rate(http_requests_total%s[5m])) by (job)", filter), q); ok {
		sample.Throughput = ptr(v * 60)
	}
	return sample, nil
}
