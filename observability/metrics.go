package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// LedgerMetrics tracks the discount ledger activity.
type LedgerMetrics struct {
	payments      prometheus.Counter
	requested     prometheus.Counter
	settled       prometheus.Counter
	ratio         *prometheus.GaugeVec
	registrations *prometheus.CounterVec
	transactions  *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// RPC returns the lazily-initialised metrics registry for JSON-RPC methods.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dine",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records one JSON-RPC call. code is the JSON-RPC error code, or zero
// on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "quota_exceeded".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Ledger returns the lazily-initialised discount ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			payments: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "payments_total",
				Help:      "Count of settled discounted payments.",
			}),
			requested: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "requested_volume_total",
				Help:      "Sum of requested payment amounts in token base units.",
			}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "settled_volume_total",
				Help:      "Sum of settled (discounted) payment amounts in token base units.",
			}),
			ratio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "last_ratio",
				Help:      "Ratio applied to the most recent payment of each restaurant, as a fraction of 1.",
			}, []string{"restaurant"}),
			registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "registrations_total",
				Help:      "Restaurant lifecycle transitions segmented by action.",
			}, []string{"action"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dine",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Submitted transactions segmented by type and outcome.",
			}, []string{"type", "outcome"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.payments,
			ledgerRegistry.requested,
			ledgerRegistry.settled,
			ledgerRegistry.ratio,
			ledgerRegistry.registrations,
			ledgerRegistry.transactions,
		)
	})
	return ledgerRegistry
}

// RecordPayment accounts for one settled payment.
func (m *LedgerMetrics) RecordPayment(restaurant string, requested, settled, ratio *big.Int) {
	if m == nil {
		return
	}
	m.payments.Inc()
	m.requested.Add(bigToFloat(requested))
	m.settled.Add(bigToFloat(settled))
	if restaurant = strings.TrimSpace(restaurant); restaurant != "" {
		m.ratio.WithLabelValues(restaurant).Set(ratioToFloat(ratio))
	}
}

// RecordLifecycle counts a registration or removal. Removed restaurants drop
// their ratio series.
func (m *LedgerMetrics) RecordLifecycle(action, restaurant string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(action).Inc()
	if action == "removed" && restaurant != "" {
		m.ratio.DeleteLabelValues(restaurant)
	}
}

// RecordTransaction counts a submitted transaction by outcome.
func (m *LedgerMetrics) RecordTransaction(txType string, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	m.transactions.WithLabelValues(txType, outcome).Inc()
}

var ratioUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func ratioToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(value), ratioUnit).Float64()
	return f
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
