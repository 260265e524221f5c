package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/salesprice/internal/config"
	"github.com/shaiso/salesprice/internal/mq"
)

// NewEventsCmd создаёт группу команд для событий pipeline.
func NewEventsCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Pipeline events in RabbitMQ",
	}

	cmd.AddCommand(newEventsWatchCmd(configFn, outputFn))

	return cmd
}

func newEventsWatchCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print pipeline.finished events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := slog.Default()
			out := outputFn()

			cfg, err := configFn()
			if err != nil {
				return err
			}
			if cfg.Events.RabbitMQURL == "" {
				return fmt.Errorf("%w: events.rabbitmq_url is not set", config.ErrInvalidConfig)
			}

			conn, err := mq.NewConnection(ctx, cfg.Events.RabbitMQURL, logger)
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue: mq.QueuePipelineFinished,
				Handler: func(_ context.Context, msg *mq.Message) error {
					return printEvent(out, msg)
				},
				OnDecodeError: func(body []byte, err error) {
					printMalformed(out, body, err)
				},
			})

			err = consumer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// printMalformed сообщает о сообщении, которое не удалось разобрать.
func printMalformed(out *Output, body []byte, err error) {
	const maxBody = 200
	if len(body) > maxBody {
		body = append(body[:maxBody:maxBody], "..."...)
	}
	out.Error(fmt.Sprintf("malformed message %q: %v", body, err))
}

// printEvent выводит событие pipeline.finished.
func printEvent(out *Output, msg *mq.Message) error {
	if msg.Type != mq.MessageTypePipelineFinished {
		// Чужие сообщения подтверждаются без вывода
		return nil
	}

	payload, err := mq.ParsePayload[mq.PipelineFinishedPayload](msg)
	if err != nil {
		// Повторная доставка не исправит payload
		out.Error(fmt.Sprintf("message %s: %v", msg.ID, err))
		return nil
	}

	out.Print(
		[]string{"TIME", "RUN_ID", "STATUS", "RMSE", "FAILED_STAGE", "DURATION"},
		[][]string{{
			formatTime(msg.Timestamp),
			payload.RunID,
			payload.Status,
			strconv.FormatFloat(payload.Score, 'g', -1, 64),
			orDash(payload.FailedStage),
			(time.Duration(payload.DurationMs) * time.Millisecond).String(),
		}},
		payload,
	)
	return nil
}
