package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoJob — не задана функция запуска.
var ErrNoJob = errors.New("scheduler job is not set")

// Job — один запуск pipeline.
type Job func(ctx context.Context) error

// Scheduler запускает Job по cron-расписанию.
type Scheduler struct {
	expr       string
	loc        *time.Location
	job        Job
	runOnStart bool
	logger     *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// Config — конфигурация Scheduler.
type Config struct {
	Expr       string // cron-выражение
	Timezone   string // IANA timezone (default: UTC)
	Job        Job
	RunOnStart bool // выполнить Job сразу, не дожидаясь первого тика
	Logger     *slog.Logger
}

// New создаёт Scheduler и проверяет выражение.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Job == nil {
		return nil, ErrNoJob
	}
	if err := ValidateCronExpr(cfg.Expr); err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		expr:       cfg.Expr,
		loc:        loc,
		job:        cfg.Job,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
	}, nil
}

// Run выполняет Job по расписанию до отмены ctx.
// После отмены дожидается завершения текущего запуска.
func (s *Scheduler) Run(ctx context.Context) error {
	clog := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	id, err := c.AddFunc(s.expr, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	if s.runOnStart {
		s.tick(ctx)
	}

	c.Start()
	s.logger.Info("scheduler started",
		"cron", s.expr,
		"timezone", s.loc.String(),
		"next_run", c.Entry(id).Next,
	)

	<-ctx.Done()

	s.logger.Info("stopping scheduler, waiting for running pipeline")
	<-c.Stop().Done()

	s.logger.Info("scheduler stopped",
		"runs", s.runs.Load(),
		"failures", s.failures.Load(),
	)
	return nil
}

// Stats возвращает число запусков и число неудачных запусков.
func (s *Scheduler) Stats() (runs, failures int64) {
	return s.runs.Load(), s.failures.Load()
}

// tick выполняет один запуск. Ошибка не останавливает расписание.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.runs.Add(1)
	started := time.Now()

	if err := s.job(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Error("scheduled pipeline failed",
			"error", err,
			"duration", time.Since(started),
		)
		return
	}

	s.logger.Info("scheduled pipeline completed", "duration", time.Since(started))
}

// cronLogger адаптирует slog к интерфейсу cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
