package tracking

import "errors"

// Ошибки tracking.
var (
	// ErrExperimentNotFound — эксперимент с таким именем не существует.
	// Единственная ошибка поиска, после которой эксперимент создаётся.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrRunNotFound — run не найден в backend.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunEnded — run уже завершён, писать в него нельзя.
	ErrRunEnded = errors.New("run already ended")

	// ErrExperimentExists — эксперимент с таким именем уже есть.
	ErrExperimentExists = errors.New("experiment already exists")
)
