package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatadogDomain(t *testing.T) {
	assert.Equal(t, "datadoghq.com", DatadogDomain("us1"))
	assert.Equal(t, "us5.datadoghq.com", DatadogDomain("US5"))
	assert.Equal(t, "datadoghq.eu", DatadogDomain("eu1"))
	assert.Equal(t, "ddog-gov.com", DatadogDomain("us1-fed"))
	assert.Equal(t, "datadoghq.com", DatadogDomain("unknown"))
}

func TestDatadogLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/logs/events/search", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("DD-API-KEY"))
		assert.Equal(t, "app-1", r.Header.Get("DD-APPLICATION-KEY"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]any)
		assert.Equal(t, "service:payments", filter["query"])

		fmt.Fprint(w, `{
			"data": [
				{"attributes": {"timestamp": "2026-08-18T10:00:00Z", "status": "error",
					"message": "ValueError: bad input", "service": "payments", "host": "ip-10-0-0-1"}},
				{"attributes": {"timestamp": "2026-08-18T10:01:00Z", "status": "info",
					"message": "handled request", "service": "payments"}}
			]
		}`)
	}))
	defer server.Close()

	d := NewDatadog("key-1", "app-1", "us1", WithDatadogBaseURL(server.URL))
	logs, err := d.Logs(context.Background(), providerQuery(), 100)

	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "ERROR", logs[0].Level)
	assert.Equal(t, "payments", logs[0].Attributes["service"])
	assert.Equal(t, "ip-10-0-0-1", logs[0].Attributes["host"])
	assert.Equal(t, "INFO", logs[1].Level)
}

func TestDatadogMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/query/timeseries", r.URL.Path)

		var body struct {
			Data struct {
				Attributes struct {
					Queries []struct {
						Query string `json:"query"`
					} `json:"queries"`
				} `json:"attributes"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Data.Attributes.Queries, 1)
		query := body.Data.Attributes.Queries[0].Query

		switch {
		case strings.Contains(query, "duration"):
			// Nanosecond latency averaging to 150ms.
			fmt.Fprint(w, `{"data":{"attributes":{"times":[1,2],"values":[[100000000, 200000000]]}}}`)
		case strings.Contains(query, "errors"):
			fmt.Fprint(w, `{"data":{"attributes":{"times":[1],"values":[[0.5]]}}}`)
		default:
			// hits rate: 10 req/s.
			fmt.Fprint(w, `{"data":{"attributes":{"times":[1],"values":[[10]]}}}`)
		}
	}))
	defer server.Close()

	d := NewDatadog("key-1", "app-1", "us1", WithDatadogBaseURL(server.URL))
	sample, err := d.Metrics(context.Background(), providerQuery())

	require.NoError(t, err)
	require.NotNil(t, sample.LatencyP99)
	assert.InDelta(t, 150.0, *sample.LatencyP99, 0.001)
	require.NotNil(t, sample.ErrorRate)
	assert.InDelta(t, 0.5, *sample.ErrorRate, 0.001)
	require.NotNil(t, sample.Availability)
	assert.InDelta(t, 99.5, *sample.Availability, 0.001)
	require.NotNil(t, sample.Throughput)
	assert.InDelta(t, 600.0, *sample.Throughput, 0.001)
}

func TestDatadogAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":["Forbidden"]}`)
	}))
	defer server.Close()

	d := NewDatadog("bad", "bad", "us1", WithDatadogBaseURL(server.URL))
	_, err := d.Logs(context.Background(), providerQuery(), 10)

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}
