// Package metrics exposes ledger and HTTP counters in Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/ledger"
	"github.com/StewieC/DApp-PropertyVault/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propertyvault"

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	recordsCreated    prometheus.Counter
	paymentsTotal     prometheus.Counter
	rentCollected     prometheus.Counter
	savingsAccrued    prometheus.Counter
	ownerForwarded    prometheus.Counter
	withdrawalsTotal  prometheus.Counter
	savingsWithdrawn  prometheus.Counter
	vaultCustody      prometheus.Gauge
	operationFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ ledger.Observer = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	counter := func(subsystem, name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registry:         reg,
		recordsCreated:   counter("ledger", "records_created_total", "Number of property records created"),
		paymentsTotal:    counter("ledger", "payments_total", "Number of rent payments executed"),
		rentCollected:    counter("ledger", "rent_collected_base_units_total", "Rent collected, in base units"),
		savingsAccrued:   counter("ledger", "savings_accrued_base_units_total", "Savings withheld into vault custody, in base units"),
		ownerForwarded:   counter("ledger", "owner_forwarded_base_units_total", "Rent forwarded to the owner at payment time, in base units"),
		withdrawalsTotal: counter("ledger", "withdrawals_total", "Number of savings withdrawals"),
		savingsWithdrawn: counter("ledger", "savings_withdrawn_base_units_total", "Savings released to the owner, in base units"),
		vaultCustody: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "vault_custody_base_units",
			Help:      "Savings currently held in vault custody since process start, in base units",
		}),
		operationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_failures_total",
			Help:      "Failed ledger operations by operation and error kind",
		}, []string{"op", "kind"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// SetVaultCustody seeds the custody gauge, usually from the vault balance at startup.
func (m *Metrics) SetVaultCustody(amount int64) {
	m.vaultCustody.Set(float64(amount))
}

func (m *Metrics) RecordCreated(*models.Property) {
	m.recordsCreated.Inc()
}

func (m *Metrics) PaymentApplied(f *models.PaymentFact) {
	m.paymentsTotal.Inc()
	m.rentCollected.Add(float64(f.Amount))
	m.savingsAccrued.Add(float64(f.SavedForOwner))
	m.ownerForwarded.Add(float64(f.OwnerPortion))
	m.vaultCustody.Add(float64(f.SavedForOwner))
}

func (m *Metrics) WithdrawalApplied(f *models.WithdrawalFact) {
	m.withdrawalsTotal.Inc()
	m.savingsWithdrawn.Add(float64(f.Amount))
	m.vaultCustody.Sub(float64(f.Amount))
}

func (m *Metrics) OperationFailed(op string, err error) {
	m.operationFailures.WithLabelValues(op, Kind(err)).Inc()
}

// Kind maps an error to a short label value.
func Kind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ledger.ErrNothingToWithdraw):
		return "nothing_to_withdraw"
	default:
		return "internal"
	}
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
