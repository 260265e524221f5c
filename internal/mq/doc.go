// Package mq публикует события pipeline в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect с backoff, graceful shutdown)
//   - topology.go   — объявление exchange, queue, binding
//   - publisher.go  — публикация событий
//   - consumer.go   — чтение событий (команда events watch)
//
// Типы сообщений:
//   - pipeline.finished — pipeline завершён (FINISHED или FAILED)
//
// Exchanges:
//   - salesprice.pipeline — события pipeline
package mq
