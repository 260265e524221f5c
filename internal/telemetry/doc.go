// Package telemetry обеспечивает наблюдаемость pipeline.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики стадий и push в Pushgateway
//
// CLI и orchestrator используют единый формат логирования,
// метрики доступны на /metrics (--metrics-addr) или через Pushgateway.
package telemetry
