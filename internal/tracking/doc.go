// Package tracking — клиент experiment tracking.
//
// # Обзор
//
// Эксперимент — именованная группа runs. Run — отслеживаемая область
// выполнения с параметрами; runs могут быть вложенными.
//
// Вместо неявного "текущего run" пакет выдаёт явные handles:
//
//	client := tracking.NewClient(backend, logger)
//	expID, err := client.ResolveExperiment(ctx, "TAMLEP_MLFlow")
//	parent, err := client.StartRun(ctx, expID, "Sales Price Prediction")
//	child, err := parent.StartChild(ctx, "Data Cleaning")
//	err = child.LogParams(ctx, map[string]any{"rows": 100})
//	err = child.End(ctx, nil)
//
// Параметры можно писать только пока run активен; после End
// LogParams возвращает ErrRunEnded.
//
// # Backends
//
//   - MLflowBackend   — MLflow REST API (/api/2.0/mlflow)
//   - PostgresBackend — таблицы tracking_* в PostgreSQL (pgx)
//   - MemoryBackend   — в памяти процесса (тесты, --dry-run)
//
// Значения параметров приводятся к строкам на границе backend (FormatParam).
package tracking
