// Package metrics exposes run outcomes of the report modules to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/happyface/jobeff"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	jobsAccepted    *prometheus.GaugeVec
	usersReported   *prometheus.GaugeVec
	resultTimestamp *prometheus.GaugeVec
}

// New registers on its own registry so that several instances (one per
// test) do not collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobeff_runs_total",
			Help: "Module runs by instance and outcome.",
		}, []string{"instance", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobeff_run_duration_seconds",
			Help:    "Time spent extracting and rendering one instance.",
			Buckets: prometheus.DefBuckets,
		}, []string{"instance"}),
		jobsAccepted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobeff_jobs_accepted",
			Help: "Jobs that passed the group filter in the last snapshot.",
		}, []string{"instance"}),
		usersReported: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobeff_users_reported",
			Help: "Users drawn in the last plots.",
		}, []string{"instance"}),
		resultTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobeff_result_timestamp_seconds",
			Help: "Snapshot time of the last result.",
		}, []string{"instance"}),
	}
	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.jobsAccepted,
		m.usersReported,
		m.resultTimestamp,
	)
	return m
}

func (m *Metrics) ObserveReport(instance string, rec jobeff.ResultRecord, users map[string]*jobeff.UserStats, took time.Duration) {
	var jobs int
	for _, u := range users {
		jobs += u.Total
	}
	m.runsTotal.WithLabelValues(instance, StatusOK).Inc()
	m.runDuration.WithLabelValues(instance).Observe(took.Seconds())
	m.jobsAccepted.WithLabelValues(instance).Set(float64(jobs))
	m.usersReported.WithLabelValues(instance).Set(float64(len(users)))
	m.resultTimestamp.WithLabelValues(instance).Set(float64(rec.ResultTimestamp))
}

func (m *Metrics) ObserveFailure(instance string) {
	m.runsTotal.WithLabelValues(instance, StatusFailed).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
