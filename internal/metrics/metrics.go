// Package metrics exposes Prometheus metrics derived from session events.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/events"
)

const namespace = "autopilot"

// Metrics records session activity. It implements events.Sink.
type Metrics struct {
	registry *prometheus.Registry

	sessions      *prometheus.CounterVec
	subtasks      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	corrections   *prometheus.CounterVec
	verifyScore   prometheus.Histogram
	sessionLength prometheus.Histogram
	paused        prometheus.Gauge
}

// New creates metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		subtasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtasks_total",
			Help:      "Subtask outcomes by type.",
		}, []string{"type", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtask_retries_total",
			Help:      "Execution retries by subtask type.",
		}, []string{"type"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Auto-correction attempts by result.",
		}, []string{"result"}),
		verifyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_score",
			Help:      "Aggregate verification scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		sessionLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of finished sessions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the session is paused.",
		}),
	}
	m.registry.MustRegister(
		m.sessions, m.subtasks, m.retries, m.corrections,
		m.verifyScore, m.sessionLength, m.paused,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Emit updates metrics from a lifecycle event.
func (m *Metrics) Emit(e events.Event) {
	typ := string(e.SubtaskType)
	switch e.Type {
	case events.SubtaskRetry:
		m.retries.WithLabelValues(typ).Inc()
	case events.SubtaskSkipped:
		m.subtasks.WithLabelValues(typ, "skipped").Inc()
	case events.SubtaskCorrected:
		m.corrections.WithLabelValues("passed").Inc()
		m.subtasks.WithLabelValues(typ, "corrected").Inc()
	case events.VerificationPassed, events.VerificationFailed:
		if e.Score != nil {
			m.verifyScore.Observe(float64(*e.Score))
		}
		if e.Type == events.VerificationFailed && e.Attempt > 0 {
			m.corrections.WithLabelValues("failed").Inc()
		}
	case events.Paused:
		m.paused.Set(1)
	case events.Resumed:
		m.paused.Set(0)
	case events.TaskComplete, events.TaskFailed, events.Cancelled:
		m.paused.Set(0)
		m.observeSession(e)
	}
}

func (m *Metrics) observeSession(e events.Event) {
	outcome := "failed"
	switch {
	case e.Type == events.Cancelled:
		outcome = "cancelled"
	case e.Result != nil && e.Result.Success:
		outcome = "success"
	}
	m.sessions.WithLabelValues(outcome).Inc()
	if e.Result == nil {
		return
	}
	m.sessionLength.Observe(e.Result.Duration.Seconds())
	for _, o := range e.Result.Outcomes {
		if o.Skipped || o.Corrected {
			continue
		}
		label := "failed"
		if o.Success {
			label = "success"
		}
		typ := ""
		if e.Result.Plan != nil {
			if st, ok := e.Result.Plan.Subtask(o.SubtaskID); ok {
				typ = string(st.Type)
			}
		}
		m.subtasks.WithLabelValues(typ, label).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var _ events.Sink = (*Metrics)(nil)
