package cli

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/orchestrator"
	"github.com/shaiso/salesprice/internal/tracking"
)

// experimentSummary — сводка эксперимента для вывода.
type experimentSummary struct {
	tracking.Experiment
	Runs     int `json:"runs"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`

	// LastRMSE — RMSE последнего успешного запуска, пусто если его нет.
	LastRMSE string `json:"last_rmse,omitempty"`
}

// NewExperimentCmd создаёт группу команд для экспериментов.
func NewExperimentCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Inspect experiments",
	}

	cmd.AddCommand(newExperimentShowCmd(configFn, outputFn))

	return cmd
}

func newExperimentShowCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show [NAME]",
		Short: "Show experiment and its pipeline runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := configFn()
			if err != nil {
				return err
			}
			name := cfg.Tracking.Experiment
			if len(args) == 1 {
				name = args[0]
			}

			client, closeTracking, err := OpenTracking(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer closeTracking()

			exp, err := client.Backend().GetExperimentByName(ctx, name)
			if err != nil {
				return err
			}
			runs, err := client.ListRuns(ctx, exp.ID)
			if err != nil {
				return err
			}

			summary := summarize(*exp, runs)
			outputFn().Print(
				[]string{"ID", "NAME", "PIPELINES", "FINISHED", "FAILED", "RUNNING", "LAST_RMSE"},
				[][]string{{
					summary.ID,
					summary.Name,
					strconv.Itoa(summary.Runs),
					strconv.Itoa(summary.Finished),
					strconv.Itoa(summary.Failed),
					strconv.Itoa(summary.Running),
					orDash(summary.LastRMSE),
				}},
				summary,
			)
			return nil
		},
	}
}

// summarize считает корневые runs (запуски pipeline) по статусам и берёт
// RMSE из стадии scoring последнего успешного запуска.
// runs упорядочены по времени старта.
func summarize(exp tracking.Experiment, runs []tracking.RunInfo) experimentSummary {
	s := experimentSummary{Experiment: exp}
	lastFinished := ""
	for _, r := range runs {
		if r.ParentID != "" {
			continue
		}
		s.Runs++
		switch r.Status {
		case tracking.RunStatusFinished:
			s.Finished++
			lastFinished = r.ID
		case tracking.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if lastFinished == "" {
		return s
	}
	for _, r := range runs {
		if r.ParentID == lastFinished && r.Name == orchestrator.RunModelScoring {
			s.LastRMSE, _ = r.Param(orchestrator.ParamRMSE)
			break
		}
	}
	return s
}
