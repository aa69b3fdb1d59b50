// Package metrics exposes Prometheus instruments for the pricing
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// calculationDuration tracks end-to-end pricing calculation time by source.
	calculationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_calculation_duration_seconds",
		Help:    "End-to-end price calculation time by pricing source",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"source"})

	// pricingSource counts decisions by the tier that produced them.
	pricingSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_decisions_total",
		Help: "Total price decisions by pricing source",
	}, []string{"source"})

	// fallbackInvocations counts fallback cascade entries by reason.
	fallbackInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_fallback_invocations_total",
		Help: "Total fallback controller invocations by reason",
	}, []string{"reason"})

	// fallbackTier counts which cascade tier terminated the fallback.
	fallbackTier = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_fallback_tier_total",
		Help: "Total fallback results by terminating tier",
	}, []string{"tier"})

	// aiRejections counts AI suggestions rejected by the validation gate.
	aiRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_ai_rejections_total",
		Help: "Total AI suggestions rejected by the validation gate, by reason",
	}, []string{"reason"})

	// aiSuggestionDuration tracks AI suggestion latency including timeouts.
	aiSuggestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_ai_suggestion_duration_seconds",
		Help:    "AI price suggestion latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	})

	// ruleEvaluationDuration tracks rule engine evaluation time.
	ruleEvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_rule_evaluation_duration_seconds",
		Help:    "Rule engine evaluation time",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// ruleMatches tracks how many rules matched per evaluation.
	ruleMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricing_rule_matches_count",
		Help:    "Number of rules matched per evaluation",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
	})

	// ledgerWriteErrors counts failed decision persists.
	ledgerWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_ledger_write_errors_total",
		Help: "Total failed price decision writes",
	})

	// decisionsExpired counts decisions swept to expired.
	decisionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_decisions_expired_total",
		Help: "Total decisions transitioned to expired by the sweeper",
	})
)

// ObserveCalculation records one completed price calculation.
func ObserveCalculation(source string, d time.Duration) {
	calculationDuration.WithLabelValues(source).Observe(d.Seconds())
	pricingSource.WithLabelValues(source).Inc()
}

// RecordFallback records a fallback invocation and its terminating tier.
func RecordFallback(reason, tier string) {
	fallbackInvocations.WithLabelValues(reason).Inc()
	fallbackTier.WithLabelValues(tier).Inc()
}

// RecordAIRejection records a rejected AI suggestion.
func RecordAIRejection(reason string) {
	aiRejections.WithLabelValues(reason).Inc()
}

// ObserveAISuggestion records AI suggestion latency.
func ObserveAISuggestion(d time.Duration) {
	aiSuggestionDuration.Observe(d.Seconds())
}

// ObserveRuleEvaluation records one rule engine pass.
func ObserveRuleEvaluation(d time.Duration, matched int) {
	ruleEvaluationDuration.Observe(d.Seconds())
	ruleMatches.Observe(float64(matched))
}

// RecordLedgerWriteError records a failed decision persist.
func RecordLedgerWriteError() {
	ledgerWriteErrors.Inc()
}

// RecordDecisionsExpired records decisions swept to expired.
func RecordDecisionsExpired(n int) {
	decisionsExpired.Add(float64(n))
}
