package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/tracking"
)

// OpenTracking создаёт tracking client для backend из конфигурации.
// Возвращаемую функцию close нужно вызвать по завершении работы.
func OpenTracking(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tracking.Client, func(), error) {
	var (
		backend tracking.Backend
		closeFn = func() {}
	)

	switch cfg.Tracking.Backend {
	case config.BackendMLflow:
		backend = tracking.NewMLflowBackend(cfg.Tracking.URI, cfg.Tracking.Timeout)
		logger.Debug("using mlflow tracking", "uri", cfg.Tracking.URI)

	case config.BackendPostgres:
		pool, err := tracking.NewPool(ctx, cfg.Tracking.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect tracking database: %w", err)
		}
		pg := tracking.NewPostgresBackend(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		backend = pg
		closeFn = pool.Close
		logger.Debug("using postgres tracking")

	case config.BackendMemory:
		backend = tracking.NewMemoryBackend()
		logger.Debug("using in-memory tracking")

	default:
		return nil, nil, fmt.Errorf("%w: unknown tracking backend %q", config.ErrInvalidConfig, cfg.Tracking.Backend)
	}

	return tracking.NewClient(backend, logger), closeFn, nil
}
