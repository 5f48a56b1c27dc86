package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type creditMetrics struct {
	loansOpened  *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	scoreValues  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	creditMetricsOnce sync.Once
	creditRegistry    *creditMetrics
)

// ModuleMetrics returns the lazily-initialised metrics registry used to
// record JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credit",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credit",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "credit",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// CreditMetrics returns the lazily-initialised registry covering lending
// activity: loan openings by tier, liquidation outcomes, and the distribution
// of computed scores.
func CreditMetrics() *creditMetrics {
	creditMetricsOnce.Do(func() {
		creditRegistry = &creditMetrics{
			loansOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credit",
				Subsystem: "vault",
				Name:      "loans_opened_total",
				Help:      "Count of loans opened segmented by credit tier.",
			}, []string{"tier"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credit",
				Subsystem: "vault",
				Name:      "liquidation_calls_total",
				Help:      "Count of liquidation calls segmented by outcome.",
			}, []string{"outcome"}),
			scoreValues: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "credit",
				Subsystem: "score",
				Name:      "computed_values",
				Help:      "Distribution of computed overall credit scores.",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			}, []string{"caller"}),
		}
		prometheus.MustRegister(
			creditRegistry.loansOpened,
			creditRegistry.liquidations,
			creditRegistry.scoreValues,
		)
	})
	return creditRegistry
}

// RecordLoanOpened increments the per-tier loan counter.
func (m *creditMetrics) RecordLoanOpened(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.loansOpened.WithLabelValues(tier).Inc()
}

// RecordLiquidationOutcome increments the liquidation outcome counter.
func (m *creditMetrics) RecordLiquidationOutcome(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.liquidations.WithLabelValues(outcome).Inc()
}

// RecordScore observes a computed overall score.
func (m *creditMetrics) RecordScore(caller string, overall int) {
	if m == nil {
		return
	}
	if caller == "" {
		caller = "unknown"
	}
	m.scoreValues.WithLabelValues(caller).Observe(float64(overall))
}
