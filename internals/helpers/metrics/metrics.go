// Package metrics exposes reconciliation counters to Prometheus. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "school_finance"

type Recorder struct {
	initiated     *prometheus.CounterVec
	completed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	retryDepth    prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		initiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_initiated_total",
			Help: "Payments recorded in the initiated state.",
		}, []string{"provider", "method"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_completed_total",
			Help: "Payments that reached completed and credited an invoice.",
		}, []string{"provider"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_failed_total",
			Help: "Payments that reached failed.",
		}, []string{"provider", "cause"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhooks_total",
			Help: "Provider callbacks by processing result.",
		}, []string{"provider", "result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconciliation_anomalies_total",
			Help: "Overpayments, amount mismatches and payments against closed invoices.",
		}, []string{"kind"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "apply_confirmation_seconds",
			Help:    "Time spent applying a confirmation under the invoice lock.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		retryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "webhook_retry_queue_depth",
			Help: "Callbacks waiting for another attempt.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.initiated, r.completed, r.failed, r.webhooks, r.anomalies, r.applyDuration, r.retryDepth)
	}
	return r
}

func (r *Recorder) PaymentInitiated(provider, method string) {
	if r == nil {
		return
	}
	r.initiated.WithLabelValues(provider, method).Inc()
}

func (r *Recorder) PaymentCompleted(provider string) {
	if r == nil {
		return
	}
	r.completed.WithLabelValues(provider).Inc()
}

// PaymentFailed cause: provider, rejected, timeout.
func (r *Recorder) PaymentFailed(provider, cause string) {
	if r == nil {
		return
	}
	r.failed.WithLabelValues(provider, cause).Inc()
}

func (r *Recorder) Webhook(provider, result string) {
	if r == nil {
		return
	}
	r.webhooks.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) Anomaly(kind string) {
	if r == nil {
		return
	}
	r.anomalies.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveApply(provider string, d time.Duration) {
	if r == nil {
		return
	}
	r.applyDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (r *Recorder) RetryDepth(n int64) {
	if r == nil {
		return
	}
	r.retryDepth.Set(float64(n))
}
