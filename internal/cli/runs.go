package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/tracking"
)

// NewRunsCmd создаёт группу команд для просмотра runs.
func NewRunsCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	var experiment string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect tracked runs",
	}

	cmd.PersistentFlags().StringVar(&experiment, "experiment", "", "Experiment name (default from config)")

	cmd.AddCommand(
		newRunsListCmd(configFn, outputFn, &experiment),
		newRunsShowCmd(configFn, outputFn, &experiment),
	)

	return cmd
}

func newRunsListCmd(configFn func() (*config.Config, error), outputFn func() *Output, experiment *string) *cobra.Command {
	var parent string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs of the experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := loadRuns(cmd.Context(), configFn, *experiment)
			if err != nil {
				return err
			}

			filtered := make([]tracking.RunInfo, 0, len(runs))
			for _, r := range runs {
				if parent != "" && r.ParentID != parent {
					continue
				}
				if status != "" && string(r.Status) != status {
					continue
				}
				filtered = append(filtered, r)
			}

			outputFn().Print(
				[]string{"ID", "NAME", "PARENT", "STATUS", "STARTED", "ENDED", "PARAMS"},
				runRows(filtered),
				filtered,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "Show only children of this run")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, FINISHED, FAILED)")

	return cmd
}

func newRunsShowCmd(configFn func() (*config.Config, error), outputFn func() *Output, experiment *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run params",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := loadRuns(cmd.Context(), configFn, *experiment)
			if err != nil {
				return err
			}

			for _, r := range runs {
				if r.ID != args[0] {
					continue
				}
				rows := [][]string{
					{"id", r.ID},
					{"name", r.Name},
					{"parent", orDash(r.ParentID)},
					{"status", string(r.Status)},
					{"started", formatTime(r.StartTime)},
					{"ended", formatTime(r.EndTime)},
				}
				for _, p := range r.Params {
					rows = append(rows, []string{p.Key, p.Value})
				}
				outputFn().Print([]string{"KEY", "VALUE"}, rows, r)
				return nil
			}

			return fmt.Errorf("%w: %s", tracking.ErrRunNotFound, args[0])
		},
	}
}

// loadRuns загружает runs эксперимента. Эксперимент не создаётся.
func loadRuns(ctx context.Context, configFn func() (*config.Config, error), experiment string) ([]tracking.RunInfo, error) {
	cfg, err := configFn()
	if err != nil {
		return nil, err
	}
	if experiment == "" {
		experiment = cfg.Tracking.Experiment
	}

	client, closeTracking, err := OpenTracking(ctx, cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	defer closeTracking()

	exp, err := client.Backend().GetExperimentByName(ctx, experiment)
	if err != nil {
		return nil, err
	}
	return client.ListRuns(ctx, exp.ID)
}

// runRows формирует строки таблицы runs.
func runRows(runs []tracking.RunInfo) [][]string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.ID,
			r.Name,
			orDash(r.ParentID),
			string(r.Status),
			formatTime(r.StartTime),
			formatTime(r.EndTime),
			fmt.Sprintf("%d", len(r.Params)),
		}
	}
	return rows
}
