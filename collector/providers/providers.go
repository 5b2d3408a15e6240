// Package providers implements the collector's backend adapters. Each
// adapter translates the abstract "logs and metrics for a service in a
// window" request into the backend's native query language and guards
// its calls with a circuit breaker so a flapping backend fails fast
// instead of stalling reviews.
package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	requestTimeout = 30 * time.Second

	// maxResponseBytes caps provider response bodies.
	maxResponseBytes = 10 * 1024 * 1024
)

// newBreaker builds the circuit breaker shared by all adapters: trip
// after three consecutive failures, stay open 30s, then allow two probe
// requests in half-open state.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// APIError is a non-200 response from a provider API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api request failed with status %d: %s", e.Provider, e.Status, e.Body)
}

// doJSON executes req through the breaker and decodes the response body
// into out. Non-200 statuses become an *APIError.
func doJSON(client *http.Client, breaker *gobreaker.CircuitBreaker, provider string, req *http.Request, out any) error {
	_, err := breaker.Execute(func() (any, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Provider: provider, Status: resp.StatusCode, Body: string(body)}
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return nil, fmt.Errorf("decode %s response: %w", provider, err)
			}
		}
		return nil, nil
	})
	return err
}

func avg(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

func ptr(v float64) *float64 { return &v }
