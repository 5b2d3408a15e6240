package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360studio/healthwatch/collector"
)

const newRelicGraphQLURL = "https://api.newrelic.com/graphql"

// nrqlGraphQLQuery wraps an NRQL query in the NerdGraph envelope.
const nrqlGraphQLQuery = `query($accountId: Int!, $nrql: Nrql!) {
  actor {
    account(id: $accountId) {
      nrql(query: $nrql) {
        results
      }
    }
  }
}`

// NewRelic runs NRQL queries through the NerdGraph API for both logs
// and metrics.
type NewRelic struct {
	graphqlURL string
	accountID  int
	apiKey     string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewRelicOption configures a NewRelic adapter.
type NewRelicOption func(*NewRelic)

// WithNewRelicGraphQLURL overrides the NerdGraph endpoint. Used in tests.
func WithNewRelicGraphQLURL(u string) NewRelicOption {
	return func(n *NewRelic) {
		n.graphqlURL = u
	}
}

// NewNewRelic creates a New Relic adapter for one workspace integration.
func NewNewRelic(accountID int, apiKey string, opts ...NewRelicOption) *NewRelic {
	n := &NewRelic{
		graphqlURL: newRelicGraphQLURL,
		accountID:  accountID,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: requestTimeout},
		breaker:    newBreaker("newrelic"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements collector.LogSource and collector.MetricSource.
func (n *NewRelic) Kind() collector.Kind { return collector.KindNewRelic }

type nerdGraphResponse struct {
	Data struct {
		Actor struct {
			Account struct {
				NRQL struct {
					Results []map[string]any `json:"results"`
				} `json:"nrql"`
			} `json:"account"`
		} `json:"actor"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// queryNRQL executes one NRQL query and returns its result rows.
func (n *NewRelic) queryNRQL(ctx context.Context, nrql string) ([]map[string]any, error) {
	payload, err := json.Marshal(map[string]any{
		"query": nrqlGraphQLQuery,
		"variables": map[string]any{
			"accountId": n.accountID,
			"nrql":      nrql,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Key", n.apiKey)

	var resp nerdGraphResponse
	if err := doJSON(n.client, n.breaker, "newrelic", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("nrql query failed: %s", resp.Errors[0].Message)
	}
	return resp.Data.Actor.Account.NRQL.Results, nil
}

// Logs queries the Log event type, text-matching the service name in the
// message field.
func (n *NewRelic) Logs(ctx context.Context, q collector.Query, limit int) ([]collector.LogEntry, error) {
	nrql := fmt.Sprintf("SELECT * FROM Log WHERE message LIKE '%%%s%%' SINCE %d UNTIL %d LIMIT %d",
		q.ServiceName, q.WeekStart.UnixMilli(), q.WeekEnd.UnixMilli(), limit)

	results, err := n.queryNRQL(ctx, nrql)
	if err != nil {
		return nil, err
	}

	logs := make([]collector.LogEntry, 0, len(results))
	for _, row := range results {
		timestamp := time.Now().UTC()
		if ms, ok := numberField(row, "timestamp"); ok {
			timestamp = time.UnixMilli(int64(ms)).UTC()
		}

		message, _ := row["message"].(string)
		logs = append(logs, collector.LogEntry{
			Timestamp: timestamp,
			Level:     collector.DetectLogLevel(message),
			Message:   message,
		})
	}
	return logs, nil
}

// Metrics queries Transaction data for the golden-signal set. Duration
// comes back in seconds and is converted to milliseconds; availability
// is derived from the error percentage.
func (n *NewRelic) Metrics(ctx context.Context, q collector.Query) (collector.Sample, error) {
	var sample collector.Sample
	window := fmt.Sprintf("SINCE %d UNTIL %d", q.WeekStart.Unix(), q.WeekEnd.Unix())

	durationNRQL := fmt.Sprintf(
		"SELECT percentile(duration) as value FROM Metric WHERE appName = '%s' %s TIMESERIES AUTO",
		q.ServiceName, window)
	if rows, err := n.queryNRQL(ctx, durationNRQL); err == nil {
		var values []float64
		for _, row := range rows {
			if v, ok := numberField(row, "value"); ok {
				values = append(values, v)
			}
		}
		if v, ok := avg(values); ok {
			sample.LatencyP99 = ptr(v * 1000)
		}
	}

	errorNRQL := fmt.Sprintf(
		"SELECT percentage(count(*), WHERE error IS true) as error_rate FROM Transaction WHERE appName = '%s' %s",
		q.ServiceName, window)
	if rows, err := n.queryNRQL(ctx, errorNRQL); err == nil {
		for _, row := range rows {
			if v, ok := numberField(row, "error_rate"); ok {
				sample.ErrorRate = ptr(v)
				sample.Availability = ptr(100.0 - v)
				break
			}
		}
	}

	throughputNRQL := fmt.Sprintf(
		"SELECT rate(count(*), 1 minute) as throughput FROM Transaction WHERE appName = '%s' %s",
		q.ServiceName, window)
	if rows, err := n.queryNRQL(ctx, throughputNRQL); err == nil {
		for _, row := range rows {
			if v, ok := numberField(row, "throughput"); ok {
				sample.Throughput = ptr(v)
				break
			}
		}
	}
	return sample, nil
}

// numberField reads a numeric field from an NRQL result row, accepting
// both float64 and integer-typed JSON numbers.
func numberField(row map[string]any, key string) (float64, bool) {
	switch v := row[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
