package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/healthwatch/collector"
)

func grafanaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/datasources", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]string{
			{"name": "Loki", "type": "loki", "uid": "loki-uid"},
			{"name": "Prometheus", "type": "prometheus", "uid": "prom-uid"},
		})
	})

	mux.HandleFunc("/api/datasources/proxy/uid/loki-uid/loki/api/v1/query_range", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `{job="payments"}`, r.URL.Query().Get("query"))
		assert.Equal(t, "BACKWARD", r.URL.Query().Get("direction"))
		fmt.Fprint(w, `{
			"status": "success",
			"data": {
				"result": [{
					"stream": {"job": "payments", "env": "prod"},
					"values": [
						["1755648000000000000", "ERROR: payment declined"],
						["1755648060000000000", "request completed"]
					]
				}]
			}
		}`)
	})

	mux.HandleFunc("/api/datasources/proxy/uid/prom-uid/api/v1/query_range", func(w http.ResponseWriter, r *http.Request) {
		// Every PromQL query gets a single series with two points that
		// average to 0.2.
		fmt.Fprint(w, `{
			"status": "success",
			"data": {
				"result": [{"values": [[1755648000, "0.1"], [1755651600, "0.3"]]}]
			}
		}`)
	})

	return httptest.NewServer(mux)
}

func TestGrafanaLogs(t *testing.T) {
	server := grafanaTestServer(t)
	defer server.Close()

	g := NewGrafana(server.URL, "token-1")
	logs, err := g.Logs(context.Background(), providerQuery(), 100)

	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "ERROR", logs[0].Level)
	assert.Equal(t, "ERROR: payment declined", logs[0].Message)
	assert.Equal(t, "prod", logs[0].Attributes["env"])
	assert.Equal(t, time.Unix(0, 1755648000000000000).UTC(), logs[0].Timestamp)
	assert.Equal(t, "INFO", logs[1].Level)
}

func TestGrafanaMetrics(t *testing.T) {
	server := grafanaTestServer(t)
	defer server.Close()

	g := NewGrafana(server.URL, "token-1")
	sample, err := g.Metrics(context.Background(), providerQuery())

	require.NoError(t, err)
	require.NotNil(t, sample.LatencyP99)
	// 0.2s average converted to milliseconds.
	assert.InDelta(t, 200.0, *sample.LatencyP99, 0.001)
	require.NotNil(t, sample.Availability)
	// 0.2 up-average converted to a percentage.
	assert.InDelta(t, 20.0, *sample.Availability, 0.001)
	require.NotNil(t, sample.Throughput)
	// 0.2 req/s converted to req/min.
	assert.InDelta(t, 12.0, *sample.Throughput, 0.001)
}

func TestGrafanaDatasourceMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{})
	}))
	defer server.Close()

	g := NewGrafana(server.URL, "token-1")
	_, err := g.Logs(context.Background(), providerQuery(), 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGrafanaUIDCached(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasources", func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode([]map[string]string{
			{"name": "Loki", "type": "loki", "uid": "loki-uid"},
		})
	})
	mux.HandleFunc("/api/datasources/proxy/uid/loki-uid/loki/api/v1/query_range", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"result":[]}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	g := NewGrafana(server.URL, "token-1")
	_, err := g.Logs(context.Background(), providerQuery(), 10)
	require.NoError(t, err)
	_, err = g.Logs(context.Background(), providerQuery(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func providerQuery() collector.Query {
	return collector.Query{
		WorkspaceID: "ws-1",
		ServiceName: "payments",
		WeekStart:   time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		WeekEnd:     time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
	}
}
