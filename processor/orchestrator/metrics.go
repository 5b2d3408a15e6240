package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	metricReviewsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthwatch",
		Name:      "reviews_processed_total",
		Help:      "Review generation requests that reached a terminal status.",
	})
	metricReviewsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthwatch",
		Name:      "reviews_failed_total",
		Help:      "Review generations that ended in failed status.",
	})
	metricActiveReviews = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthwatch",
		Name:      "active_reviews",
		Help:      "Reviews currently being generated.",
	})
)

func init() {
	prometheus.MustRegister(metricReviewsProcessed, metricReviewsFailed, metricActiveReviews)
}
