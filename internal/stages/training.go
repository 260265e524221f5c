package stages

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/dataset"
)

// Параметры обучения по умолчанию.
const (
	defaultEpochs       = 1000
	defaultLearningRate = 0.1
)

// TrainPipeline — артефакт обучения: feature pipeline и линейная модель.
type TrainPipeline struct {
	Target   string          `json:"target"`
	Features FeaturePipeline `json:"features"`
	Model    LinearModel     `json:"model"`
}

// LinearModel — линейная регрессия y = W·x + B.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Predict возвращает предсказания для строк X.
func (m *LinearModel) Predict(X [][]float64) []float64 {
	pred := make([]float64, len(X))
	for i, row := range X {
		sum := m.Bias
		for j, v := range row {
			sum += m.Weights[j] * v
		}
		pred[i] = sum
	}
	return pred
}

// FitLinear обучает модель полным градиентным спуском по MSE.
// Начальные веса нулевые, результат детерминирован.
//
// Шаг для весов делится на число признаков: для стандартизованных
// признаков собственные числа X^T X/n не превышают их количество,
// поэтому спуск сходится и при коллинеарных колонках.
func FitLinear(X [][]float64, y []float64, epochs int, lr float64) (*LinearModel, error) {
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d targets", ErrArtifactMismatch, len(X), len(y))
	}

	nFeatures := len(X[0])
	m := &LinearModel{Weights: make([]float64, nFeatures), Bias: mean(y)}
	n := float64(len(X))
	wStep := lr / float64(max(1, nFeatures))

	gW := make([]float64, nFeatures)
	for ep := 0; ep < epochs; ep++ {
		clear(gW)
		gb := 0.0

		pred := m.Predict(X)
		for i, row := range X {
			d := pred[i] - y[i]
			for j, v := range row {
				gW[j] += d * v
			}
			gb += d
		}

		for j := range m.Weights {
			m.Weights[j] -= wStep * 2 * gW[j] / n
		}
		m.Bias -= lr * 2 * gb / n
	}

	if loss := rmse(y, m.Predict(X)); math.IsNaN(loss) || math.IsInf(loss, 0) {
		return nil, fmt.Errorf("%w: train rmse %v after %d epochs (learning_rate %v)", ErrModelDiverged, loss, epochs, lr)
	}
	return m, nil
}

// TrainModel обучает модель на train-наборе.
//
// Параметры:
//   - epochs (int, default 1000)
//   - learning_rate (float, default 0.1)
func (s *Stages) TrainModel(ctx context.Context, cfg *config.Config, opts config.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	epochs := opts.Int("epochs", defaultEpochs)
	lr := opts.Float("learning_rate", defaultLearningRate)
	if epochs <= 0 || lr <= 0 {
		return fmt.Errorf("%w: epochs and learning_rate must be positive", ErrInvalidOptions)
	}

	var curated CuratedColumns
	if err := readJSON(CuratedColumnsPath(cfg), &curated); err != nil {
		return fmt.Errorf("load curated columns: %w", err)
	}
	var fp FeaturePipeline
	if err := readJSON(FeaturesPath(cfg), &fp); err != nil {
		return fmt.Errorf("load feature pipeline: %w", err)
	}
	if !slices.Equal(curated.Columns, fp.ColumnNames()) {
		return fmt.Errorf("%w: curated columns differ from feature pipeline", ErrArtifactMismatch)
	}

	X, y, target, err := loadXY(&fp, TrainFeaturesPath(cfg), TrainTargetPath(cfg), fp.DropOutliers)
	if err != nil {
		return err
	}

	model, err := FitLinear(X, y, epochs, lr)
	if err != nil {
		return err
	}

	pipeline := TrainPipeline{Target: target, Features: fp, Model: *model}
	if err := writeJSON(TrainPipelinePath(cfg), pipeline); err != nil {
		return fmt.Errorf("save train pipeline: %w", err)
	}

	s.logger.Info("model trained",
		"rows", len(X),
		"features", len(fp.Columns),
		"epochs", epochs,
		"train_rmse", rmse(y, model.Predict(X)),
	)
	return nil
}

// loadXY читает признаки и цель, применяет feature pipeline и
// выравнивает цель по оставшимся строкам.
func loadXY(fp *FeaturePipeline, featuresPath, targetPath string, drop bool) ([][]float64, []float64, string, error) {
	features, err := dataset.ReadCSV(featuresPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load features: %w", err)
	}
	labels, err := dataset.ReadCSV(targetPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load target: %w", err)
	}
	if len(labels.Columns) != 1 {
		return nil, nil, "", fmt.Errorf("%w: target file must have one column, got %d", ErrArtifactMismatch, len(labels.Columns))
	}
	if len(labels.Rows) != len(features.Rows) {
		return nil, nil, "", fmt.Errorf("%w: %d feature rows but %d target rows", ErrArtifactMismatch, len(features.Rows), len(labels.Rows))
	}

	target := labels.Columns[0]
	all, err := labels.Floats(target)
	if err != nil {
		return nil, nil, "", err
	}

	X, kept, err := fp.Transform(features, drop)
	if err != nil {
		return nil, nil, "", err
	}
	if len(X) == 0 {
		return nil, nil, "", ErrEmptyDataset
	}

	y := make([]float64, len(kept))
	for i, r := range kept {
		y[i] = all[r]
	}
	return X, y, target, nil
}
