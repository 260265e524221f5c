package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/mq"
	"github.com/shaiso/salesprice/internal/orchestrator"
	"github.com/shaiso/salesprice/internal/scheduler"
	"github.com/shaiso/salesprice/internal/stages"
	"github.com/shaiso/salesprice/internal/telemetry"
)

// NewRunCmd создаёт команду запуска pipeline.
func NewRunCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	var (
		schedule    string
		timezone    string
		metricsAddr string
		dryRun      bool
		noEvents    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sales price pipeline",
		Long: `Run cleaning, feature engineering, training and scoring in nested
tracked runs. With --schedule the pipeline runs on a cron schedule until
interrupted; a tick is skipped while the previous pipeline is still running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := slog.Default()
			out := outputFn()

			cfg, err := configFn()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Tracking.Backend = config.BackendMemory
				noEvents = true
			}

			client, closeTracking, err := OpenTracking(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeTracking()

			metrics := telemetry.NewMetrics()
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, metrics, logger)
				defer stop()
			}

			var publisher orchestrator.Publisher
			if cfg.Events.RabbitMQURL != "" && !noEvents {
				conn, err := mq.NewConnection(ctx, cfg.Events.RabbitMQURL, logger)
				if err != nil {
					return fmt.Errorf("connect to RabbitMQ: %w", err)
				}
				defer conn.Close()

				if err := mq.SetupTopology(ctx, conn); err != nil {
					return fmt.Errorf("setup topology: %w", err)
				}
				logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())
				publisher = mq.NewPublisher(conn, logger)
			}

			orch := orchestrator.New(orchestrator.Config{
				Tracker:        client,
				ExperimentName: cfg.Tracking.Experiment,
				Stages:         stages.New(logger),
				Context:        cfg,
				Options:        cfg.Stages,
				Publisher:      publisher,
				Metrics:        metrics,
				Logger:         logger,
			})

			job := func(ctx context.Context) error {
				result, runErr := orch.Run(ctx)
				if result != nil {
					printResult(out, result)
				}
				if cfg.Metrics.PushgatewayURL != "" {
					if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
						logger.Warn("failed to push metrics", "error", err)
					}
				}
				return runErr
			}

			if schedule == "" {
				if err := job(ctx); err != nil {
					return err
				}
				out.Success("Pipeline completed")
				return nil
			}

			sched, err := scheduler.New(scheduler.Config{
				Expr:       schedule,
				Timezone:   timezone,
				Job:        job,
				RunOnStart: true,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			return sched.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression to run the pipeline repeatedly (e.g. \"0 3 * * *\", \"@hourly\")")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for --schedule (default UTC)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address (e.g. \":9090\")")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Track runs in memory and skip event publishing")
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "Do not publish pipeline events to RabbitMQ")

	return cmd
}

// printResult выводит итог запуска.
func printResult(out *Output, result *orchestrator.Result) {
	names := make([]string, 0, len(result.StageRuns))
	for name := range result.StageRuns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return stageOrder(names[i]) < stageOrder(names[j])
	})

	rows := [][]string{{orchestrator.RunPipeline, result.RunID}}
	for _, name := range names {
		rows = append(rows, []string{name, result.StageRuns[name]})
	}
	rows = append(rows, []string{orchestrator.ParamRMSE, strconv.FormatFloat(result.Score, 'g', -1, 64)})

	out.Print([]string{"RUN", "ID"}, rows, result)
}

func stageOrder(name string) int {
	switch name {
	case orchestrator.RunDataCleaning:
		return 0
	case orchestrator.RunFeatureEngineering:
		return 1
	case orchestrator.RunModelTraining:
		return 2
	default:
		return 3
	}
}

// serveMetrics запускает HTTP сервер с /healthz и /metrics.
// Возвращает функцию graceful shutdown.
func serveMetrics(addr string, metrics *telemetry.Metrics, logger *slog.Logger) func() {
	startTime := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
}
