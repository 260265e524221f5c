package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics — Prometheus метрики pipeline.
//
// Метрики регистрируются в собственном реестре, чтобы тесты и
// повторные запуски по расписанию не конфликтовали с глобальным.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	pipelineTotal *prometheus.CounterVec
	lastScore     prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики pipeline.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salesprice_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage", "status"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesprice_stage_runs_total",
			Help: "Total pipeline stage executions",
		}, []string{"stage", "status"}),
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesprice_pipeline_runs_total",
			Help: "Total pipeline executions",
		}, []string{"status"}),
		lastScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesprice_last_rmse",
			Help: "RMSE reported by the last successful scoring stage",
		}),
	}

	m.registry.MustRegister(
		m.stageDuration,
		m.stageTotal,
		m.pipelineTotal,
		m.lastScore,
		collectors.NewGoCollector(),
	)

	return m
}

// ObserveStage записывает длительность и исход стадии.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := statusLabel(err)
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
	m.stageTotal.WithLabelValues(stage, status).Inc()
}

// ObservePipeline записывает исход всего pipeline.
func (m *Metrics) ObservePipeline(err error) {
	if m == nil {
		return
	}
	m.pipelineTotal.WithLabelValues(statusLabel(err)).Inc()
}

// SetScore сохраняет последнее значение RMSE.
func (m *Metrics) SetScore(v float64) {
	if m == nil {
		return
	}
	m.lastScore.Set(v)
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push отправляет метрики в Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
