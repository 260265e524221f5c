// salesprice — pipeline прогноза цены продаж с записью runs
// в experiment tracking service.
//
// Использование:
//
//	salesprice [--config PATH] [--env-file PATH] [--json] <command> [flags]
//
// Команды:
//
//	run         Запуск pipeline (однократно или по --schedule)
//	runs        Просмотр runs эксперимента
//	experiment  Сводка по эксперименту
//	events      Просмотр событий pipeline.finished
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/salesprice/internal/cli"
	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		configPath string
		envFiles   []string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:           "salesprice",
		Short:         "salesprice — tracked sales price prediction pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env читается до логгера: LOG_LEVEL и LOG_FORMAT могут быть в нём
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			telemetry.SetupLogger()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to pipeline config (YAML)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment from file (default .env, repeatable)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Конфигурация загружается один раз на процесс
	configFn := sync.OnceValues(func() (*config.Config, error) {
		return config.Load(configPath)
	})
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(configFn, outputFn),
		cli.NewRunsCmd(configFn, outputFn),
		cli.NewExperimentCmd(configFn, outputFn),
		cli.NewEventsCmd(configFn, outputFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
