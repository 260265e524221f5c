package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Параметры переподключения.
const (
	initialRetryInterval = time.Second
	maxRetryInterval     = 30 * time.Second
	connectTimeout       = 30 * time.Second
)

// ErrNoChannel — канал недоступен (соединение закрыто или переподключается).
var ErrNoChannel = errors.New("no channel available")

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
// - Первое подключение и переподключения с экспоненциальной задержкой
// - Потокобезопасный доступ к каналу
// - Graceful shutdown
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Для уведомления о переподключении
	reconnectCh chan struct{}
}

// NewConnection подключается к RabbitMQ.
//
// Первое подключение повторяется с backoff не дольше connectTimeout
// или до отмены ctx.
func NewConnection(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger,
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	bo := newBackOff()
	bo.MaxElapsedTime = connectTimeout

	err := backoff.RetryNotify(c.connect, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		c.logger.Warn("connect to RabbitMQ failed, retrying", "error", err, "in", wait)
	})
	if err != nil {
		return nil, err
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialRetryInterval
	bo.MaxInterval = maxRetryInterval
	bo.RandomizationFactor = 0.5
	return bo
}

// connect устанавливает соединение и открывает канал.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return backoff.Permanent(fmt.Errorf("connection closed"))
	}

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}

			c.mu.Lock()
			c.channel = nil
			c.mu.Unlock()

			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой до успеха или Close.
func (c *Connection) reconnect() bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closedCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := newBackOff()
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(c.connect, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		c.logger.Warn("reconnect failed", "error", err, "in", wait)
	})
	if err != nil {
		return false
	}

	c.logger.Info("reconnected to RabbitMQ")

	// Уведомляем о переподключении
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}

	return true
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNoChannel
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil {
		return ErrNoChannel
	}

	return fn(ch)
}
