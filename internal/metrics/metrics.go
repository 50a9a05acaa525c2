// Package metrics holds the prometheus counters a run records. A run is a
// short-lived batch process, so the counters are pushed to a Pushgateway at
// exit instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome values for RequestsTotal.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeConflict  = "conflict"
)

// Page outcome values for PagesTotal.
const (
	PageRelabeled = "relabeled"
	PageCached    = "cached"
	PageFile      = "file"
)

// Label actions for LabelsTotal.
const (
	LabelAdded   = "added"
	LabelRemoved = "removed"
)

// Recorder owns a private registry so tests and repeated runs in one process
// do not collide on global collectors.
type Recorder struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	PagesTotal      *prometheus.CounterVec
	LabelsTotal     *prometheus.CounterVec
	RunDuration     prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
	LastRunFinished prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labelsync_requests_total",
				Help: "Remote API request attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "labelsync_retries_total",
				Help: "Request attempts made after a transient failure",
			},
		),
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labelsync_pages_total",
				Help: "Pages visited by outcome",
			},
			[]string{"outcome"},
		),
		LabelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labelsync_labels_total",
				Help: "Label mutations by action",
			},
			[]string{"action"},
		),
		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labelsync_run_duration_seconds",
				Help: "Wall time of the last run",
			},
		),
		LastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labelsync_last_run_success",
				Help: "1 if the last run completed, 0 otherwise",
			},
		),
		LastRunFinished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labelsync_last_run_finished_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}

	r.registry.MustRegister(
		r.RequestsTotal,
		r.RetriesTotal,
		r.PagesTotal,
		r.LabelsTotal,
		r.RunDuration,
		r.LastRunSuccess,
		r.LastRunFinished,
	)
	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest counts one request attempt. Safe on a nil Recorder.
func (r *Recorder) ObserveRequest(method, outcome string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRetry counts one retry. Safe on a nil Recorder.
func (r *Recorder) ObserveRetry() {
	if r == nil {
		return
	}
	r.RetriesTotal.Inc()
}

// ObservePage counts one visited page. Safe on a nil Recorder.
func (r *Recorder) ObservePage(outcome string) {
	if r == nil {
		return
	}
	r.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLabels counts n label mutations. Safe on a nil Recorder.
func (r *Recorder) ObserveLabels(action string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.LabelsTotal.WithLabelValues(action).Add(float64(n))
}

// FinishRun records the run duration and result. Safe on a nil Recorder.
func (r *Recorder) FinishRun(started time.Time, success bool) {
	if r == nil {
		return
	}
	now := time.Now()
	r.RunDuration.Set(now.Sub(started).Seconds())
	r.LastRunFinished.Set(float64(now.Unix()))
	if success {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}
}

// Push sends all collectors to the Pushgateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if job == "" {
		job = "labelsync"
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
