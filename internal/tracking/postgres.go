package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы tracking. Создаются EnsureSchema при старте.
const schema = `
CREATE TABLE IF NOT EXISTS tracking_experiments (
	id         uuid PRIMARY KEY,
	name       text NOT NULL UNIQUE,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tracking_runs (
	id            uuid PRIMARY KEY,
	experiment_id uuid NOT NULL REFERENCES tracking_experiments(id),
	parent_run_id uuid REFERENCES tracking_runs(id),
	name          text NOT NULL,
	status        text NOT NULL,
	start_time    timestamptz NOT NULL,
	end_time      timestamptz
);

CREATE INDEX IF NOT EXISTS tracking_runs_experiment_idx ON tracking_runs (experiment_id, start_time);

CREATE TABLE IF NOT EXISTS tracking_params (
	run_id uuid NOT NULL REFERENCES tracking_runs(id) ON DELETE CASCADE,
	key    text NOT NULL,
	value  text NOT NULL,
	PRIMARY KEY (run_id, key)
);
`

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

// NewPool создаёт пул соединений и проверяет доступность базы.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PostgresBackend хранит эксперименты и runs в PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend создаёт backend поверх пула.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// EnsureSchema создаёт таблицы, если их нет.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetExperimentByName ищет эксперимент по имени.
func (b *PostgresBackend) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	query := `SELECT id, name FROM tracking_experiments WHERE name = $1`

	var (
		id  uuid.UUID
		exp Experiment
	)
	err := b.pool.QueryRow(ctx, query, name).Scan(&id, &exp.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, name)
		}
		return nil, fmt.Errorf("select experiment: %w", err)
	}
	exp.ID = id.String()
	return &exp, nil
}

// CreateExperiment создаёт эксперимент.
func (b *PostgresBackend) CreateExperiment(ctx context.Context, name string) (string, error) {
	id := uuid.New()
	query := `INSERT INTO tracking_experiments (id, name) VALUES ($1, $2)`

	if _, err := b.pool.Exec(ctx, query, id, name); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%w: %s", ErrExperimentExists, name)
		}
		return "", fmt.Errorf("insert experiment: %w", err)
	}
	return id.String(), nil
}

// CreateRun создаёт run в статусе RUNNING.
func (b *PostgresBackend) CreateRun(ctx context.Context, req CreateRunRequest) (*RunInfo, error) {
	expID, err := uuid.Parse(req.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("parse experiment id: %w", err)
	}

	var parentID *uuid.UUID
	if req.ParentID != "" {
		p, err := uuid.Parse(req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("parse parent run id: %w", err)
		}
		parentID = &p
	}

	id := uuid.New()
	query := `
		INSERT INTO tracking_runs (id, experiment_id, parent_run_id, name, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = b.pool.Exec(ctx, query,
		id,
		expID,
		parentID,
		req.Name,
		string(RunStatusRunning),
		req.StartTime,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &RunInfo{
		ID:           id.String(),
		ExperimentID: req.ExperimentID,
		ParentID:     req.ParentID,
		Name:         req.Name,
		Status:       RunStatusRunning,
		StartTime:    req.StartTime,
	}, nil
}

// LogParams записывает параметры в одной транзакции.
func (b *PostgresBackend) LogParams(ctx context.Context, runID string, params []Param) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO tracking_params (run_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value
	`

	batch := &pgx.Batch{}
	for _, p := range params {
		batch.Queue(query, id, p.Key, p.Value)
	}

	br := tx.SendBatch(ctx, batch)
	for range params {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert param: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateRun переводит run в финальный статус.
func (b *PostgresBackend) UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}

	query := `UPDATE tracking_runs SET status = $2, end_time = $3 WHERE id = $1`
	result, err := b.pool.Exec(ctx, query, id, string(status), endTime)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns возвращает runs эксперимента с параметрами.
func (b *PostgresBackend) ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error) {
	expID, err := uuid.Parse(experimentID)
	if err != nil {
		return nil, fmt.Errorf("parse experiment id: %w", err)
	}

	query := `
		SELECT r.id, r.parent_run_id, r.name, r.status, r.start_time, r.end_time, p.key, p.value
		FROM tracking_runs r
		LEFT JOIN tracking_params p ON p.run_id = r.id
		WHERE r.experiment_id = $1
		ORDER BY r.start_time, r.id, p.key
	`
	rows, err := b.pool.Query(ctx, query, expID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var (
		runs  []RunInfo
		index = make(map[uuid.UUID]int)
	)
	for rows.Next() {
		var (
			id       uuid.UUID
			parentID *uuid.UUID
			name     string
			status   string
			start    time.Time
			end      *time.Time
			key      *string
			value    *string
		)
		if err := rows.Scan(&id, &parentID, &name, &status, &start, &end, &key, &value); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		i, ok := index[id]
		if !ok {
			run := RunInfo{
				ID:           id.String(),
				ExperimentID: experimentID,
				Name:         name,
				Status:       RunStatus(status),
				StartTime:    start,
			}
			if parentID != nil {
				run.ParentID = parentID.String()
			}
			if end != nil {
				run.EndTime = *end
			}
			runs = append(runs, run)
			i = len(runs) - 1
			index[id] = i
		}

		if key != nil && value != nil {
			runs[i].Params = append(runs[i].Params, Param{Key: *key, Value: *value})
		}
	}
	return runs, rows.Err()
}
