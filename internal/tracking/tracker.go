package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RunStatus — статус run в tracking service.
//
// Жизненный цикл:
//
//	RUNNING → FINISHED
//	        ↘ FAILED
type RunStatus string

const (
	// RunStatusRunning — run открыт, параметры можно писать.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusFinished — run завершён успешно.
	RunStatusFinished RunStatus = "FINISHED"

	// RunStatusFailed — run завершён с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

// Experiment — запись эксперимента.
type Experiment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Param — параметр run. Значение всегда строка.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RunInfo — запись run в backend.
type RunInfo struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Name         string    `json:"name"`
	Status       RunStatus `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitzero"`
	Params       []Param   `json:"params,omitempty"`
}

// Param возвращает значение параметра по ключу.
func (ri *RunInfo) Param(key string) (string, bool) {
	for _, p := range ri.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// CreateRunRequest — параметры создания run.
type CreateRunRequest struct {
	ExperimentID string
	Name         string
	ParentID     string
	StartTime    time.Time
}

// Backend — хранилище экспериментов и runs.
type Backend interface {
	// GetExperimentByName возвращает ErrExperimentNotFound, если эксперимента нет.
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)

	// CreateExperiment создаёт эксперимент и возвращает его ID.
	CreateExperiment(ctx context.Context, name string) (string, error)

	// CreateRun создаёт run в статусе RUNNING.
	CreateRun(ctx context.Context, req CreateRunRequest) (*RunInfo, error)

	// LogParams записывает параметры run.
	LogParams(ctx context.Context, runID string, params []Param) error

	// UpdateRun переводит run в финальный статус.
	UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error

	// ListRuns возвращает runs эксперимента в порядке создания.
	ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error)
}

// Client — клиент tracking поверх Backend.
type Client struct {
	backend Backend
	logger  *slog.Logger
	clock   clockwork.Clock
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithClock задаёт часы для времени начала и завершения runs.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient создаёт клиент.
func NewClient(backend Backend, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		backend: backend,
		logger:  logger,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend возвращает используемый backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// ResolveExperiment возвращает ID эксперимента по имени, создавая его при отсутствии.
//
// Создание выполняется только на ErrExperimentNotFound. Прочие ошибки
// поиска (сеть, сервер) возвращаются вызывающему.
func (c *Client) ResolveExperiment(ctx context.Context, name string) (string, error) {
	exp, err := c.backend.GetExperimentByName(ctx, name)
	if err == nil {
		c.logger.Debug("experiment found", "experiment", name, "experiment_id", exp.ID)
		return exp.ID, nil
	}

	if !errors.Is(err, ErrExperimentNotFound) {
		return "", fmt.Errorf("get experiment %q: %w", name, err)
	}

	c.logger.Warn("error getting experiment, creating a new one",
		"experiment", name,
		"error", err,
	)

	id, err := c.backend.CreateExperiment(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}

	c.logger.Info("experiment created", "experiment", name, "experiment_id", id)
	return id, nil
}

// StartRun открывает корневой run в эксперименте.
func (c *Client) StartRun(ctx context.Context, experimentID, name string) (*Run, error) {
	return c.startRun(ctx, experimentID, name, "")
}

// ListRuns возвращает runs эксперимента.
func (c *Client) ListRuns(ctx context.Context, experimentID string) ([]RunInfo, error) {
	runs, err := c.backend.ListRuns(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (c *Client) startRun(ctx context.Context, experimentID, name, parentID string) (*Run, error) {
	info, err := c.backend.CreateRun(ctx, CreateRunRequest{
		ExperimentID: experimentID,
		Name:         name,
		ParentID:     parentID,
		StartTime:    c.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create run %q: %w", name, err)
	}

	c.logger.Debug("run started",
		"run_id", info.ID,
		"run_name", name,
		"parent_run_id", parentID,
	)

	return &Run{client: c, info: *info}, nil
}

// Run — handle активного run.
//
// Handle передаётся явно: стадия пишет параметры в свой run,
// а не в глобальный "текущий".
type Run struct {
	client *Client
	info   RunInfo

	mu    sync.Mutex
	ended bool
}

// ID возвращает идентификатор run.
func (r *Run) ID() string { return r.info.ID }

// Name возвращает имя run.
func (r *Run) Name() string { return r.info.Name }

// ExperimentID возвращает идентификатор эксперимента.
func (r *Run) ExperimentID() string { return r.info.ExperimentID }

// ParentID возвращает идентификатор родительского run ("" для корневого).
func (r *Run) ParentID() string { return r.info.ParentID }

// Active возвращает true, пока run не завершён.
func (r *Run) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.ended
}

// StartChild открывает вложенный run. Родитель должен быть активен.
func (r *Run) StartChild(ctx context.Context, name string) (*Run, error) {
	if !r.Active() {
		return nil, fmt.Errorf("start child %q of run %s: %w", name, r.info.ID, ErrRunEnded)
	}
	return r.client.startRun(ctx, r.info.ExperimentID, name, r.info.ID)
}

// LogParam записывает один параметр.
func (r *Run) LogParam(ctx context.Context, key string, value any) error {
	return r.LogParams(ctx, map[string]any{key: value})
}

// LogParams записывает набор параметров. Ключи отправляются в отсортированном порядке.
func (r *Run) LogParams(ctx context.Context, params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return fmt.Errorf("log params to run %s: %w", r.info.ID, ErrRunEnded)
	}
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := make([]Param, len(keys))
	for i, k := range keys {
		batch[i] = Param{Key: k, Value: FormatParam(params[k])}
	}

	if err := r.client.backend.LogParams(ctx, r.info.ID, batch); err != nil {
		return fmt.Errorf("log params to run %s: %w", r.info.ID, err)
	}
	return nil
}

// End завершает run: FINISHED если runErr == nil, иначе FAILED.
// Повторный вызов возвращает ErrRunEnded.
func (r *Run) End(ctx context.Context, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return fmt.Errorf("end run %s: %w", r.info.ID, ErrRunEnded)
	}
	r.ended = true

	status := RunStatusFinished
	if runErr != nil {
		status = RunStatusFailed
	}

	if err := r.client.backend.UpdateRun(ctx, r.info.ID, status, r.client.clock.Now()); err != nil {
		return fmt.Errorf("end run %s: %w", r.info.ID, err)
	}

	r.client.logger.Debug("run ended",
		"run_id", r.info.ID,
		"run_name", r.info.Name,
		"status", status,
	)
	return nil
}

// FormatParam приводит скалярное значение параметра к строке.
func FormatParam(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case fmt.Stringer:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
