package analyzer

import (
	"fmt"

	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/healthwatch/rules"
)

// Analysis is a complete, self-contained set of review findings: gaps
// already enriched, grouped errors, and the narrative. The mock analyzer
// produces one without touching the repository or any provider, and the
// orchestrator persists it through the same path as real findings.
type Analysis struct {
	LoggingGaps     []review.LoggingGap
	MetricsGaps     []review.MetricsGap
	Errors          []collector.ErrorData
	Summary         string
	Recommendations string
}

// MockAnalysis returns hardcoded demo findings. Only the service name
// flows into the output; parsed code and collected data are ignored
// entirely, so demo environments need neither. Fingerprints and
// verification verdicts are left empty because nothing was verified.
func MockAnalysis(serviceName string) *Analysis {
	if serviceName == "" {
		serviceName = "Service"
	}

	return &Analysis{
		LoggingGaps: []review.LoggingGap{
			{
				Description:           "Silent failure pattern detected for TimeoutError",
				Category:              "silent_failure",
				Severity:              rules.SeverityHigh,
				AffectedFiles:         []string{"src/services/core.py", "src/handlers/api.py"},
				AffectedFunctions:     []string{"handle_request", "process_transaction"},
				SuggestedLogStatement: `logger.error("TimeoutError occurred", extra={"error_id": error_id, "context": ctx}, exc_info=True)`,
				Rationale: "Detected 1,247 occurrences of TimeoutError in the monitoring period, " +
					"but corresponding error logs are sparse or missing. This indicates exceptions " +
					"are being caught but not logged, making root cause analysis difficult during incidents.",
			},
			{
				Description:           "Incomplete request lifecycle logging",
				Category:              "observability",
				Severity:              rules.SeverityHigh,
				AffectedFiles:         []string{"src/api/middleware.py", "src/api/handlers.py"},
				AffectedFunctions:     []string{"request_handler", "response_middleware"},
				SuggestedLogStatement: `logger.info("Request processed", extra={"request_id": req_id, "duration_ms": duration, "status": status_code, "endpoint": path})`,
				Rationale: "Analyzed 45,832 log entries but found inconsistent request tracing. " +
					"Only ~30% of requests have complete entry/exit logging, making it difficult " +
					"to trace user journeys and debug customer-reported issues.",
			},
			{
				Description:           "Critical business events not logged for audit trail",
				Category:              "compliance",
				Severity:              rules.SeverityMedium,
				AffectedFiles:         []string{"src/services/billing.py", "src/services/user.py"},
				AffectedFunctions:     []string{"process_payment", "update_subscription", "delete_account"},
				SuggestedLogStatement: `logger.info("Business event", extra={"event_type": "payment_processed", "user_id": user_id, "amount": amount, "currency": currency})`,
				Rationale: "Business-critical operations (payments, account changes, data exports) " +
					"lack structured logging. This creates compliance risk and makes financial " +
					"reconciliation difficult. Industry standards (SOC2, PCI-DSS) require audit trails.",
			},
			{
				Description:           "Third-party API calls not instrumented",
				Category:              "integration",
				Severity:              rules.SeverityMedium,
				AffectedFiles:         []string{"src/integrations/stripe.py", "src/integrations/sendgrid.py"},
				AffectedFunctions:     []string{"call_stripe_api", "send_email", "verify_webhook"},
				SuggestedLogStatement: `logger.info("External API call", extra={"provider": provider, "endpoint": endpoint, "duration_ms": duration, "status": status})`,
				Rationale: "External service calls (payment processor, email provider, etc.) are not " +
					"being logged consistently. When third-party services experience degradation, " +
					"this makes it difficult to correlate issues and communicate accurate status to customers.",
			},
		},
		MetricsGaps: []review.MetricsGap{
			{
				Description:   "Database query latency not measured",
				Category:      "performance",
				MetricType:    "histogram",
				Severity:      rules.SeverityHigh,
				AffectedFiles: []string{"src/db/repository.py", "src/db/queries.py"},
				SuggestedMetricNames: []string{
					"db_query_duration_seconds",
					"db_connection_pool_size",
					"db_query_rows_returned",
				},
				ImplementationGuide: "Instrument database layer with timing metrics. Use histogram for query " +
					"duration to capture p50/p95/p99 latencies. Add labels for query_type " +
					"(select/insert/update) and table_name for granular analysis.",
				ExampleCode: `from prometheus_client import Histogram

DB_QUERY_DURATION = Histogram(
    'db_query_duration_seconds',
    'Database query duration',
    ['query_type', 'table']
)

with DB_QUERY_DURATION.labels('select', 'users').time():
    result = db.execute(query)`,
			},
			{
				Description:   "API endpoint latency distribution not captured",
				Category:      "performance",
				MetricType:    "histogram",
				Severity:      rules.SeverityHigh,
				AffectedFiles: []string{"src/api/routes.py", "src/api/middleware.py"},
				SuggestedMetricNames: []string{
					"http_request_duration_seconds",
					"http_requests_total",
					"http_request_size_bytes",
				},
				ImplementationGuide: "Add request duration histogram at the middleware layer. Include labels " +
					"for method, endpoint, and status_code. This enables SLI/SLO tracking " +
					"and automatic alerting on latency degradation.",
				ExampleCode: `@app.middleware('http')
async def metrics_middleware(request, call_next):
    start = time.time()
    response = await call_next(request)
    duration = time.time() - start
    REQUEST_DURATION.labels(
        method=request.method,
        endpoint=request.url.path,
        status=response.status_code
    ).observe(duration)
    return response`,
			},
			{
				Description:   "Business KPIs not exposed as metrics",
				Category:      "business",
				MetricType:    "counter",
				Severity:      rules.SeverityMedium,
				AffectedFiles: []string{"src/services/orders.py", "src/services/users.py"},
				SuggestedMetricNames: []string{
					"orders_created_total",
					"orders_value_dollars_total",
					"user_signups_total",
					"user_churn_total",
				},
				ImplementationGuide: "Expose business events as Prometheus counters. This enables correlation " +
					"between technical metrics and business outcomes - e.g., 'did yesterday's " +
					"deploy affect conversion rates?'",
				ExampleCode: `ORDERS_CREATED = Counter(
    'orders_created_total',
    'Total orders created',
    ['plan_type', 'region']
)

def create_order(order):
    # ... order logic ...
    ORDERS_CREATED.labels(
        plan_type=order.plan,
        region=order.region
    ).inc()`,
			},
			{
				Description:   "Error rates not segmented by category",
				Category:      "reliability",
				MetricType:    "counter",
				Severity:      rules.SeverityMedium,
				AffectedFiles: []string{"src/api/error_handlers.py"},
				SuggestedMetricNames: []string{
					"errors_total",
					"error_rate_by_type",
					"client_errors_total",
					"server_errors_total",
				},
				ImplementationGuide: "Track errors with labels for error_type, endpoint, and severity. " +
					"This enables alerting on specific error spikes rather than aggregate " +
					"error rate, reducing alert fatigue and improving incident response.",
			},
		},
		Errors: []collector.ErrorData{
			{
				ErrorType:   "TimeoutError",
				Fingerprint: "timeout-downstream-api-001",
				Count:       1247,
				MessageSample: "Network timeout indicates either slow downstream service response or " +
					"aggressive timeout configuration. Review timeout settings and add " +
					"circuit breaker pattern to prevent cascade failures.",
				Endpoints: []string{"POST /api/v1/orders/process"},
			},
			{
				ErrorType:   "ConnectionResetError",
				Fingerprint: "conn-reset-db-pool-002",
				Count:       483,
				MessageSample: "Connection failures suggest network instability or service unavailability. " +
					"Check connection pool settings, DNS resolution, and downstream service health. " +
					"Consider implementing connection retry with exponential backoff.",
				Endpoints: []string{"GET /api/v1/users/profile"},
			},
			{
				ErrorType:   "NullPointerException",
				Fingerprint: "npe-payment-flow-003",
				Count:       156,
				MessageSample: "Null reference errors indicate missing input validation or unexpected " +
					"data state. Add defensive checks at API boundaries and validate " +
					"external data before processing.",
				Endpoints: []string{"POST /api/v1/payments/charge"},
			},
			{
				ErrorType:   "RateLimitExceeded",
				Fingerprint: "rate-limit-stripe-004",
				Count:       89,
				MessageSample: "Rate limiting errors indicate traffic exceeds configured thresholds. " +
					"Review rate limit settings, implement request queuing, or scale " +
					"capacity if limits are business-justified.",
				Endpoints: []string{"POST /api/v1/webhooks/stripe"},
			},
			{
				ErrorType:   "AuthenticationError",
				Fingerprint: "auth-token-expired-005",
				Count:       34,
				MessageSample: "Authentication/authorization failures may indicate token expiration, " +
					"misconfigured permissions, or credential rotation issues. Review " +
					"auth flow and ensure proper error messaging to users.",
				Endpoints: []string{"GET /api/v1/dashboard"},
			},
		},
		Summary: fmt.Sprintf(`**%s Health Review Summary**

**Availability:** 99.87%%
**Response Time:** acceptable (245ms p99)
**Errors:** 2,009 total across 5 distinct error types
**Log Volume:** 45,832 entries analyzed

**Observability Assessment:**
Identified 4 logging gaps and 4 metrics gaps. Significant observability gaps detected. Prioritize instrumentation improvements to reduce mean-time-to-detection (MTTD) and mean-time-to-resolution (MTTR).`, serviceName),
		Recommendations: `1. **[CRITICAL] Investigate TimeoutError** - 1,247 occurrences detected. Network timeout indicates either slow downstream service response or aggressive timeout configurat...
2. **[HIGH] Fix silent failure logging** - Errors are occurring but not being logged. This extends incident detection time and makes debugging nearly impossible.
3. **[HIGH] Implement latency tracking** - Add request duration histograms to enable SLO monitoring and proactive performance management.
4. **[MEDIUM] Add business KPI metrics** - Expose order counts, revenue, and user activity as metrics to correlate technical changes with business outcomes.
5. **[MEDIUM] Implement audit logging** - Add structured logging for sensitive operations to meet compliance requirements (SOC2, GDPR, PCI-DSS).
6. **[RECOMMENDED] Create service dashboard** - Build a unified dashboard showing latency percentiles, error rates, and business KPIs for at-a-glance service health visibility.`,
	}
}
