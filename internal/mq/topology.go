package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangePipeline Exchange = "salesprice.pipeline"
)

// Queues — имена очередей.
const (
	QueuePipelineFinished Queue = "pipeline.finished"
)

// Routing keys.
const (
	RoutingKeyFinished RoutingKey = "finished"
)

// SetupTopology объявляет exchange, очередь и binding. Операции идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangePipeline), // name
			"direct",                 // type
			true,                     // durable
			false,                    // auto-deleted
			false,                    // internal
			false,                    // no-wait
			nil,                      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangePipeline, err)
		}

		_, err = ch.QueueDeclare(
			string(QueuePipelineFinished), // name
			true,                          // durable
			false,                         // delete when unused
			false,                         // exclusive
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueuePipelineFinished, err)
		}

		err = ch.QueueBind(
			string(QueuePipelineFinished), // queue name
			string(RoutingKeyFinished),    // routing key
			string(ExchangePipeline),      // exchange
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueuePipelineFinished, ExchangePipeline, err)
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  salesprice RabbitMQ Topology:

    salesprice.pipeline (direct)
    └── pipeline.finished [routing: finished]
            Consumer: salesprice events watch
  `
}
