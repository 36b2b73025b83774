// Package metrics 暴露批处理的 Prometheus 指标。
//
// 每个 Metrics 持有独立的 Registry（不注册到全局默认 registry），
// nil *Metrics 的所有方法都是 no-op，调用方无需判空。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	lookups      *prometheus.CounterVec
	rows         *prometheus.CounterVec
	units        *prometheus.CounterVec
	issues       *prometheus.CounterVec
	unitDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikifilms_lookups_total",
				Help: "Identity lookup steps, labeled by step and outcome.",
			},
			[]string{"step", "outcome"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikifilms_rows_total",
				Help: "Table rows considered, labeled by result (resolved or skipped).",
			},
			[]string{"result"},
		),
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikifilms_units_total",
				Help: "Completed extraction units, labeled by status.",
			},
			[]string{"status"},
		),
		issues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikifilms_record_issues_total",
				Help: "Incomplete movie records, labeled by issue.",
			},
			[]string{"issue"},
		),
		unitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikifilms_unit_duration_seconds",
				Help:    "Wall time of one extraction unit (fetch + scan + resolve).",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
	}
	m.Registry.MustRegister(m.lookups, m.rows, m.units, m.issues, m.unitDuration)
	return m
}

func (m *Metrics) Lookup(step, outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) Row(skipped bool) {
	if m == nil {
		return
	}
	result := "resolved"
	if skipped {
		result = "skipped"
	}
	m.rows.WithLabelValues(result).Inc()
}

func (m *Metrics) Issue(issue string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.issues.WithLabelValues(issue).Add(float64(n))
}

func (m *Metrics) Unit(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(status).Inc()
	m.unitDuration.Observe(d.Seconds())
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，直到 ctx 结束。
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info("exposing prometheus metrics", "address", addr)
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
