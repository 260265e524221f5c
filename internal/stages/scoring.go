package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/shaiso/salesprice/internal/config"
)

// ScoreModel считает RMSE обученной модели на test-наборе.
// Выбросы в test-наборе заменяются, строки не удаляются.
func (s *Stages) ScoreModel(ctx context.Context, cfg *config.Config, _ config.Options) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var pipeline TrainPipeline
	if err := readJSON(TrainPipelinePath(cfg), &pipeline); err != nil {
		return 0, fmt.Errorf("load train pipeline: %w", err)
	}
	if len(pipeline.Model.Weights) != len(pipeline.Features.Columns) {
		return 0, fmt.Errorf("%w: model has %d weights for %d features",
			ErrArtifactMismatch, len(pipeline.Model.Weights), len(pipeline.Features.Columns))
	}

	X, y, target, err := loadXY(&pipeline.Features, TestFeaturesPath(cfg), TestTargetPath(cfg), false)
	if err != nil {
		return 0, err
	}
	if target != pipeline.Target {
		return 0, fmt.Errorf("%w: model trained on %q, test target is %q", ErrArtifactMismatch, pipeline.Target, target)
	}

	score := rmse(y, pipeline.Model.Predict(X))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: test rmse %v", ErrModelDiverged, score)
	}

	s.logger.Info("model scored",
		"rows", len(X),
		"rmse", score,
	)
	return score, nil
}
