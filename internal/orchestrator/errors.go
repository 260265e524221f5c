package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки оркестратора.
var (
	// ErrNoTracker — не задан tracking client.
	ErrNoTracker = errors.New("tracking client is not configured")

	// ErrNoStages — не задана реализация стадий.
	ErrNoStages = errors.New("stages are not configured")

	// ErrNoContext — не задана конфигурация pipeline.
	ErrNoContext = errors.New("pipeline context is not configured")
)

// StageError — ошибка конкретной стадии.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
