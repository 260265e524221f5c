package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend хранит эксперименты и runs в памяти процесса.
// Потокобезопасен.
type MemoryBackend struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment // name → experiment
	runs        []*RunInfo
	byID        map[string]*RunInfo
}

// NewMemoryBackend создаёт пустой MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		experiments: make(map[string]*Experiment),
		byID:        make(map[string]*RunInfo),
	}
}

// GetExperimentByName возвращает эксперимент по имени.
func (m *MemoryBackend) GetExperimentByName(_ context.Context, name string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, name)
	}
	cp := *exp
	return &cp, nil
}

// CreateExperiment создаёт эксперимент.
func (m *MemoryBackend) CreateExperiment(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrExperimentExists, name)
	}

	exp := &Experiment{ID: uuid.New().String(), Name: name}
	m.experiments[name] = exp
	return exp.ID, nil
}

// CreateRun создаёт run.
func (m *MemoryBackend) CreateRun(_ context.Context, req CreateRunRequest) (*RunInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.ParentID != "" {
		if _, ok := m.byID[req.ParentID]; !ok {
			return nil, fmt.Errorf("parent %s: %w", req.ParentID, ErrRunNotFound)
		}
	}

	run := &RunInfo{
		ID:           uuid.New().String(),
		ExperimentID: req.ExperimentID,
		ParentID:     req.ParentID,
		Name:         req.Name,
		Status:       RunStatusRunning,
		StartTime:    req.StartTime,
	}
	m.runs = append(m.runs, run)
	m.byID[run.ID] = run

	cp := *run
	return &cp, nil
}

// LogParams записывает параметры. Повторная запись ключа заменяет значение.
func (m *MemoryBackend) LogParams(_ context.Context, runID string, params []Param) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.byID[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	for _, p := range params {
		replaced := false
		for i := range run.Params {
			if run.Params[i].Key == p.Key {
				run.Params[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			run.Params = append(run.Params, p)
		}
	}
	return nil
}

// UpdateRun переводит run в финальный статус.
func (m *MemoryBackend) UpdateRun(_ context.Context, runID string, status RunStatus, endTime time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("run %s: status %s is not final", runID, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.byID[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Status = status
	run.EndTime = endTime
	return nil
}

// ListRuns возвращает runs эксперимента в порядке создания.
func (m *MemoryBackend) ListRuns(_ context.Context, experimentID string) ([]RunInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RunInfo
	for _, run := range m.runs {
		if run.ExperimentID != experimentID {
			continue
		}
		cp := *run
		cp.Params = append([]Param(nil), run.Params...)
		out = append(out, cp)
	}
	return out, nil
}

// ExperimentCount возвращает количество экспериментов.
func (m *MemoryBackend) ExperimentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.experiments)
}
