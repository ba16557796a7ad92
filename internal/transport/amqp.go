package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPClient maps each topic onto a durable queue of the same name on the
// default exchange.
type AMQPClient struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	conn      io.Closer
	channel   amqpChannel
	declared  map[string]bool
	handlers  map[string]Handler
	connected atomic.Bool
	wg        sync.WaitGroup
}

func NewAMQP(url string, timeout time.Duration, logger *slog.Logger) *AMQPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AMQPClient{
		url:      url,
		timeout:  timeout,
		logger:   logger,
		declared: make(map[string]bool),
		handlers: make(map[string]Handler),
	}
}

func (c *AMQPClient) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.connected.Load() {
		return nil
	}
	if c.conn != nil {
		_ = c.dropLocked()
	}
	conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(c.timeout)})
	if err != nil {
		return fmt.Errorf("amqp connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	c.conn = conn
	c.channel = ch
	c.declared = make(map[string]bool)
	c.connected.Store(true)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			c.connected.Store(false)
			if c.logger != nil {
				c.logger.Error("amqp connection closed", "err", err)
			}
		}
	}()

	for queue, h := range c.handlers {
		if err := c.consume(queue, h); err != nil {
			_ = c.dropLocked()
			return err
		}
	}
	if c.logger != nil {
		c.logger.Info("amqp connected")
	}
	return nil
}

func (c *AMQPClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *AMQPClient) Close() error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	err := c.dropLocked()
	c.mu.Unlock()
	c.wg.Wait()
	return err
}

// dropLocked closes the current channel and connection and forgets them.
// c.mu must be held.
func (c *AMQPClient) dropLocked() error {
	c.connected.Store(false)
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	c.conn = nil
	c.channel = nil
	return errors.Join(errs...)
}

func (c *AMQPClient) Subscribe(_ context.Context, topic string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.handlers[topic]
	c.handlers[topic] = h
	if exists || c.channel == nil || !c.connected.Load() {
		return nil
	}
	return c.consume(topic, h)
}

func (c *AMQPClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	if err := c.declare(topic); err != nil {
		return err
	}
	err := c.channel.PublishWithContext(ctx,
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        payload,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", topic, err)
	}
	return nil
}

// declare and consume must be called with c.mu held.
func (c *AMQPClient) declare(queue string) error {
	if c.declared[queue] {
		return nil
	}
	if _, err := c.channel.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	c.declared[queue] = true
	return nil
}

func (c *AMQPClient) consume(queue string, h Handler) error {
	if err := c.declare(queue); err != nil {
		return err
	}
	deliveries, err := c.channel.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", queue, err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range deliveries {
			h(Message{Topic: queue, Payload: d.Body, ReceivedAt: time.Now().UTC()})
		}
	}()
	return nil
}
