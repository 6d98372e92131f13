package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponValidationTotal counts coupon application outcomes by reason.
	CouponValidationTotal *prometheus.CounterVec
	// ShippingQuoteTotal counts shipping quote outcomes by source.
	ShippingQuoteTotal *prometheus.CounterVec
	// ShippingQuoteLatency records quote latency in milliseconds.
	ShippingQuoteLatency *prometheus.HistogramVec
	// PersistenceOpsTotal counts session persistence operations.
	PersistenceOpsTotal *prometheus.CounterVec
	// ActiveSessions tracks the number of checkout sessions held in memory.
	ActiveSessions prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validation_total",
			Help:      "Count of coupon validation outcomes.",
		}, []string{"result"})
		ShippingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_total",
			Help:      "Count of shipping quote outcomes.",
		}, []string{"result"})
		ShippingQuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_quote_duration_ms",
			Help:      "Latency for shipping quotes in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"})
		PersistenceOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_ops_total",
			Help:      "Count of session persistence operations by record and outcome.",
		}, []string{"op", "record", "result"})
		ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_active",
			Help:      "Number of checkout sessions held in memory.",
		})

		mustRegisterCollector(reg, CouponValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponValidationTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingQuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ShippingQuoteTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingQuoteLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ShippingQuoteLatency = v
			}
		})
		mustRegisterCollector(reg, PersistenceOpsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PersistenceOpsTotal = v
			}
		})
		mustRegisterCollector(reg, ActiveSessions, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				ActiveSessions = v
			}
		})
	})
}

// CountCouponValidation is safe to call before the metrics are registered.
func CountCouponValidation(result string) {
	if CouponValidationTotal != nil {
		CouponValidationTotal.WithLabelValues(result).Inc()
	}
}

// ObserveShippingQuote records a quote outcome and its latency in milliseconds.
func ObserveShippingQuote(result string, millis float64) {
	if ShippingQuoteTotal != nil {
		ShippingQuoteTotal.WithLabelValues(result).Inc()
	}
	if ShippingQuoteLatency != nil {
		ShippingQuoteLatency.WithLabelValues(result).Observe(millis)
	}
}

// CountPersistence records a persistence operation for one record kind.
func CountPersistence(op, record, result string) {
	if PersistenceOpsTotal != nil {
		PersistenceOpsTotal.WithLabelValues(op, record, result).Inc()
	}
}

// SetActiveSessions updates the in-memory session gauge.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
