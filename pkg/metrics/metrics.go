// Package metrics exposes ledger counters to Prometheus. A nil *Recorder is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry      *prometheus.Registry
	confirmations *prometheus.CounterVec
	distributions *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	uowDuration   *prometheus.HistogramVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,
		confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carefund_deposit_confirmations_total",
			Help: "Deposit confirmations by response status.",
		}, []string{"status"}),
		distributions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carefund_distributions_total",
			Help: "Distributions by outcome.",
		}, []string{"outcome"}),
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carefund_transfers_total",
			Help: "Transfers and reversals by outcome.",
		}, []string{"kind", "outcome"}),
		payouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carefund_payouts_total",
			Help: "Payouts by outcome.",
		}, []string{"outcome"}),
		uowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carefund_unit_of_work_duration_seconds",
			Help:    "Duration of ledger units of work.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *Recorder) Confirmation(status string) {
	if r == nil {
		return
	}
	r.confirmations.WithLabelValues(status).Inc()
}

// Distribution records "applied", "skipped", "failed" or "noop".
func (r *Recorder) Distribution(result string) {
	if r == nil {
		return
	}
	r.distributions.WithLabelValues(result).Inc()
}

func (r *Recorder) Transfer(kind string, err error) {
	if r == nil {
		return
	}
	r.transfers.WithLabelValues(kind, outcome(err)).Inc()
}

func (r *Recorder) Payout(err error) {
	if r == nil {
		return
	}
	r.payouts.WithLabelValues(outcome(err)).Inc()
}

// ObserveUnitOfWork is meant to be deferred with the start time.
func (r *Recorder) ObserveUnitOfWork(operation string, start time.Time) {
	if r == nil {
		return
	}
	r.uowDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry to tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
