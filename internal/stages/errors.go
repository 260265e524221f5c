package stages

import "errors"

// Ошибки стадий.
var (
	// ErrTargetNotFound — в таблице нет целевой колонки.
	ErrTargetNotFound = errors.New("target column not found")

	// ErrNoNumericFeatures — нет ни одной числовой колонки для обучения.
	ErrNoNumericFeatures = errors.New("no numeric feature columns")

	// ErrEmptyDataset — в наборе нет строк.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrInvalidOptions — некорректные параметры стадии.
	ErrInvalidOptions = errors.New("invalid stage options")

	// ErrModelDiverged — обучение дало нечисловые веса или предсказания.
	ErrModelDiverged = errors.New("model diverged")

	// ErrArtifactMismatch — артефакты разных стадий не согласованы.
	ErrArtifactMismatch = errors.New("artifact mismatch")
)
