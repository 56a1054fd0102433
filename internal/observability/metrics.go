package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	httpInFlightGauge      prometheus.Gauge
	ledgerOperationCounter *prometheus.CounterVec
	agreementChargeCounter *prometheus.CounterVec
	supplyImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	notificationCounter    *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
	billingSweepGauge      prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		httpInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		})

		ledgerOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger and agreement calls by operation and outcome",
		}, []string{"operation", "result"})

		agreementChargeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agreement_charges_total",
			Help: "Agreement charge attempts by outcome code",
		}, []string{"symbol", "result"})

		supplyImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_supply_imbalance_total",
			Help: "Number of times the sum of balances diverged from a symbol's supply",
		}, []string{"symbol"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_notifications_total",
			Help: "Notifications delivered after commit",
		}, []string{"sink", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		billingSweepGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "billing_sweep_last_charged",
			Help: "Agreements charged by the most recent billing sweep",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			httpInFlightGauge,
			ledgerOperationCounter,
			agreementChargeCounter,
			supplyImbalanceCounter,
			idempotencyCounter,
			notificationCounter,
			workerRunCounter,
			billingSweepGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackInFlight raises the in-flight gauge and returns the matching release.
func TrackInFlight() func() {
	if httpInFlightGauge == nil {
		return func() {}
	}
	httpInFlightGauge.Inc()
	return httpInFlightGauge.Dec
}

// ObserveLedgerOperation counts one call; err == nil is recorded as "ok".
func ObserveLedgerOperation(operation string, err error) {
	if ledgerOperationCounter == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	ledgerOperationCounter.WithLabelValues(operation, result).Inc()
}

func IncrementAgreementCharge(symbol, result string) {
	if agreementChargeCounter == nil {
		return
	}
	agreementChargeCounter.WithLabelValues(symbol, result).Inc()
}

func IncrementSupplyImbalance(symbol string) {
	if supplyImbalanceCounter == nil {
		return
	}
	supplyImbalanceCounter.WithLabelValues(symbol).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementNotification(sink, result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(sink, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func SetBillingSweepCharged(n int) {
	if billingSweepGauge == nil {
		return
	}
	billingSweepGauge.Set(float64(n))
}
