package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/dataset"
	"github.com/shaiso/salesprice/internal/mq"
	"github.com/shaiso/salesprice/internal/stages"
	"github.com/shaiso/salesprice/internal/telemetry"
	"github.com/shaiso/salesprice/internal/tracking"
)

// Имена runs.
const (
	RunPipeline           = "Sales Price Prediction"
	RunDataCleaning       = "Data Cleaning"
	RunFeatureEngineering = "Feature Engineering"
	RunModelTraining      = "Model Training"
	RunModelScoring       = "Model Scoring"
)

// Ключи параметров.
const (
	ParamProductRows       = "Product Table rows"
	ParamProductAttributes = "Product Table attributes"
	ParamOrderRows         = "Order Table rows"
	ParamOrderAttributes   = "Order Table attributes"
	ParamSalesRows         = "Sales Table rows"
	ParamSalesAttributes   = "Sales Table attributes"
	ParamTrainingData      = "Training data exist"
	ParamTestData          = "Test data exist"
	ParamCuratedColumns    = "Curated columns Pipeline exist"
	ParamFeaturePipeline   = "Feature Engineering Pipeline exist"
	ParamTrainPipeline     = "Model Training Pipeline exist"
	ParamRMSE              = "RMSE Value"
)

// DefaultExperiment — имя эксперимента по умолчанию.
const DefaultExperiment = "TAMLEP_MLFlow"

// Stages — четыре стадии pipeline.
//
// Все методы получают общую конфигурацию без изменений и параметры стадии.
type Stages interface {
	CleanProductTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error)
	CleanOrderTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error)
	CleanSalesTable(ctx context.Context, cfg *config.Config, opts config.Options) (*dataset.Table, error)
	CreateTrainingDatasets(ctx context.Context, cfg *config.Config, opts config.Options) error
	TransformFeatures(ctx context.Context, cfg *config.Config, opts config.Options) error
	TrainModel(ctx context.Context, cfg *config.Config, opts config.Options) error
	ScoreModel(ctx context.Context, cfg *config.Config, opts config.Options) (float64, error)
}

// Publisher публикует событие о завершении pipeline.
type Publisher interface {
	PublishPipelineFinished(ctx context.Context, payload mq.PipelineFinishedPayload) error
}

// Result — итог запуска pipeline.
type Result struct {
	ExperimentID string            `json:"experiment_id"`
	RunID        string            `json:"run_id"`
	StageRuns    map[string]string `json:"stage_runs"`
	Score        float64           `json:"score"`
	Duration     time.Duration     `json:"duration"`
}

// Orchestrator запускает pipeline.
type Orchestrator struct {
	tracker    *tracking.Client
	stages     Stages
	cfg        *config.Config
	experiment string
	options    config.StageOptions
	publisher  Publisher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Tracking
	Tracker        *tracking.Client
	ExperimentName string // default: DefaultExperiment

	// Стадии и их общий контекст
	Stages  Stages
	Context *config.Config

	// Options — параметры стадий. Пустые значения берутся из config.Default().
	Options config.StageOptions

	// Опционально
	Publisher Publisher
	Metrics   *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	experiment := cfg.ExperimentName
	if experiment == "" {
		experiment = DefaultExperiment
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaults := config.Default().Stages
	options := config.StageOptions{
		Cleaning:           defaults.Cleaning.Merge(cfg.Options.Cleaning),
		TrainingDatasets:   defaults.TrainingDatasets.Merge(cfg.Options.TrainingDatasets),
		FeatureEngineering: defaults.FeatureEngineering.Merge(cfg.Options.FeatureEngineering),
		Training:           defaults.Training.Merge(cfg.Options.Training),
		Scoring:            defaults.Scoring.Merge(cfg.Options.Scoring),
	}

	return &Orchestrator{
		tracker:    cfg.Tracker,
		stages:     cfg.Stages,
		cfg:        cfg.Context,
		experiment: experiment,
		options:    options,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Run выполняет pipeline один раз.
//
// Ошибка стадии возвращается как *StageError; ошибки tracking
// возвращаются обёрнутыми. Родительский run завершается FAILED,
// если хоть одна стадия упала.
func (o *Orchestrator) Run(ctx context.Context) (result *Result, err error) {
	switch {
	case o.tracker == nil:
		return nil, ErrNoTracker
	case o.stages == nil:
		return nil, ErrNoStages
	case o.cfg == nil:
		return nil, ErrNoContext
	}

	started := time.Now()
	defer func() {
		o.metrics.ObservePipeline(err)
	}()

	expID, err := o.tracker.ResolveExperiment(ctx, o.experiment)
	if err != nil {
		return nil, fmt.Errorf("resolve experiment: %w", err)
	}
	logger := telemetry.WithExperiment(o.logger, expID)

	parent, err := o.tracker.StartRun(ctx, expID, RunPipeline)
	if err != nil {
		return nil, fmt.Errorf("start pipeline run: %w", err)
	}
	logger = telemetry.WithRunID(logger, parent.ID())
	logger.Info("pipeline started", "experiment", o.experiment)

	result = &Result{
		ExperimentID: expID,
		RunID:        parent.ID(),
		StageRuns:    make(map[string]string, 4),
	}

	defer func() {
		// Run закрывается и при отменённом ctx
		if endErr := parent.End(context.WithoutCancel(ctx), err); endErr != nil {
			logger.Error("failed to end pipeline run", "error", endErr)
			err = errors.Join(err, endErr)
		}
		result.Duration = time.Since(started)
		o.publish(ctx, logger, result, err)

		if err != nil {
			logger.Error("pipeline failed", "error", err, "duration", result.Duration)
		} else {
			logger.Info("pipeline completed", "rmse", result.Score, "duration", result.Duration)
		}
	}()

	steps := []struct {
		name string
		fn   stageFunc
	}{
		{RunDataCleaning, o.dataCleaning},
		{RunFeatureEngineering, o.featureEngineering},
		{RunModelTraining, o.modelTraining},
		{RunModelScoring, func(ctx context.Context) (map[string]any, error) {
			score, err := o.modelScoring(ctx)
			if err != nil {
				return nil, err
			}
			result.Score = score
			return map[string]any{ParamRMSE: score}, nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := o.withStage(ctx, logger, parent, step.name, result, step.fn); err != nil {
			return result, err
		}
	}

	return result, nil
}

// stageFunc выполняет стадию и возвращает параметры для её run.
type stageFunc func(ctx context.Context) (map[string]any, error)

// withStage открывает вложенный run, выполняет стадию, пишет её параметры
// и закрывает run.
//
// В *StageError заворачиваются только ошибки самой стадии; ошибки
// tracking возвращаются как есть.
func (o *Orchestrator) withStage(
	ctx context.Context,
	logger *slog.Logger,
	parent *tracking.Run,
	name string,
	result *Result,
	fn stageFunc,
) (err error) {
	run, err := parent.StartChild(ctx, name)
	if err != nil {
		return fmt.Errorf("start %s run: %w", name, err)
	}
	result.StageRuns[name] = run.ID()

	logger = telemetry.WithStage(logger, name)
	logger.Info("stage started", "stage_run_id", run.ID())
	started := time.Now()

	defer func() {
		if endErr := run.End(context.WithoutCancel(ctx), err); endErr != nil {
			logger.Error("failed to end stage run", "error", endErr)
			err = errors.Join(err, endErr)
		}

		elapsed := time.Since(started)
		o.metrics.ObserveStage(name, elapsed, err)

		if err != nil {
			logger.Error("stage failed", "error", err, "duration", elapsed)
		} else {
			logger.Info("stage completed", "duration", elapsed)
		}
	}()

	params, err := fn(ctx)
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	if err := run.LogParams(ctx, params); err != nil {
		return fmt.Errorf("log %s params: %w", name, err)
	}
	return nil
}

// dataCleaning очищает три таблицы и строит train/test наборы.
func (o *Orchestrator) dataCleaning(ctx context.Context) (map[string]any, error) {
	product, err := o.stages.CleanProductTable(ctx, o.cfg, o.options.Cleaning)
	if err != nil {
		return nil, fmt.Errorf("clean product table: %w", err)
	}
	orders, err := o.stages.CleanOrderTable(ctx, o.cfg, o.options.Cleaning)
	if err != nil {
		return nil, fmt.Errorf("clean order table: %w", err)
	}
	sales, err := o.stages.CleanSalesTable(ctx, o.cfg, o.options.Cleaning)
	if err != nil {
		return nil, fmt.Errorf("clean sales table: %w", err)
	}
	if err := o.stages.CreateTrainingDatasets(ctx, o.cfg, o.options.TrainingDatasets); err != nil {
		return nil, fmt.Errorf("create training datasets: %w", err)
	}

	productRows, productCols := product.Shape()
	orderRows, orderCols := orders.Shape()
	salesRows, salesCols := sales.Shape()

	return map[string]any{
		ParamProductRows:       productRows,
		ParamProductAttributes: productCols,
		ParamOrderRows:         orderRows,
		ParamOrderAttributes:   orderCols,
		ParamSalesRows:         salesRows,
		ParamSalesAttributes:   salesCols,
		ParamTrainingData:      fileExists(stages.TrainFeaturesPath(o.cfg)) && fileExists(stages.TrainTargetPath(o.cfg)),
		ParamTestData:          fileExists(stages.TestFeaturesPath(o.cfg)) && fileExists(stages.TestTargetPath(o.cfg)),
	}, nil
}

// featureEngineering обучает преобразование признаков.
func (o *Orchestrator) featureEngineering(ctx context.Context) (map[string]any, error) {
	if err := o.stages.TransformFeatures(ctx, o.cfg, o.options.FeatureEngineering); err != nil {
		return nil, fmt.Errorf("transform features: %w", err)
	}

	return map[string]any{
		ParamCuratedColumns:  fileExists(stages.CuratedColumnsPath(o.cfg)),
		ParamFeaturePipeline: fileExists(stages.FeaturesPath(o.cfg)),
	}, nil
}

// modelTraining обучает модель.
func (o *Orchestrator) modelTraining(ctx context.Context) (map[string]any, error) {
	if err := o.stages.TrainModel(ctx, o.cfg, o.options.Training); err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	return map[string]any{
		ParamTrainPipeline: fileExists(stages.TrainPipelinePath(o.cfg)),
	}, nil
}

// modelScoring считает метрику модели.
func (o *Orchestrator) modelScoring(ctx context.Context) (float64, error) {
	score, err := o.stages.ScoreModel(ctx, o.cfg, o.options.Scoring)
	if err != nil {
		return 0, fmt.Errorf("score model: %w", err)
	}
	o.metrics.SetScore(score)
	return score, nil
}

// publish отправляет событие о завершении. Ошибка публикации не влияет на результат.
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, result *Result, runErr error) {
	if o.publisher == nil {
		return
	}

	payload := mq.PipelineFinishedPayload{
		ExperimentID: result.ExperimentID,
		RunID:        result.RunID,
		Status:       string(tracking.RunStatusFinished),
		StageRuns:    result.StageRuns,
		Score:        result.Score,
		DurationMs:   result.Duration.Milliseconds(),
	}
	if runErr != nil {
		payload.Status = string(tracking.RunStatusFailed)
		payload.Error = runErr.Error()

		var stageErr *StageError
		if errors.As(runErr, &stageErr) {
			payload.FailedStage = stageErr.Stage
		}
	}

	if err := o.publisher.PublishPipelineFinished(context.WithoutCancel(ctx), payload); err != nil {
		logger.Warn("failed to publish pipeline event", "error", err)
	}
}

// fileExists возвращает true, если path — существующий обычный файл.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
