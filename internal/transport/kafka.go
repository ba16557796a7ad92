package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaClient maps MQTT-style topic names onto Kafka topics by replacing
// "/" with ".". Each subscription runs its own consumer-group reader.
type KafkaClient struct {
	brokers []string
	groupID string
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	writers   map[string]*kafka.Writer
	handlers  map[string]Handler
}

func NewKafka(brokers []string, groupID string, logger *slog.Logger) *KafkaClient {
	return &KafkaClient{
		brokers:  brokers,
		groupID:  groupID,
		logger:   logger,
		writers:  make(map[string]*kafka.Writer),
		handlers: make(map[string]Handler),
	}
}

func kafkaTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (c *KafkaClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if len(c.brokers) == 0 {
		return errors.New("kafka connect: no brokers configured")
	}
	var lastErr error
	reachable := false
	for _, broker := range c.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return fmt.Errorf("kafka connect: %w", lastErr)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	for topic := range c.handlers {
		c.startReader(topic)
	}
	if c.logger != nil {
		c.logger.Info("kafka connected", "brokers", c.brokers, "group_id", c.groupID)
	}
	return nil
}

func (c *KafkaClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *KafkaClient) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.cancel()
	writers := c.writers
	c.writers = make(map[string]*kafka.Writer)
	c.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

func (c *KafkaClient) Subscribe(_ context.Context, topic string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.handlers[topic]
	c.handlers[topic] = h
	if c.connected && !exists {
		c.startReader(topic)
	}
	return nil
}

func (c *KafkaClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	w, ok := c.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(c.brokers...),
			Topic:                  kafkaTopic(topic),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
		c.writers[topic] = w
	}
	c.mu.Unlock()
	if err := w.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// startReader must be called with c.mu held.
func (c *KafkaClient) startReader(topic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		Topic:    kafkaTopic(topic),
		GroupID:  c.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if c.logger != nil {
					c.logger.Warn("kafka read error", "topic", topic, "err", err)
				}
				if !backoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			c.mu.Lock()
			h := c.handlers[topic]
			c.mu.Unlock()
			if h != nil {
				h(Message{Topic: topic, Payload: m.Value, ReceivedAt: time.Now().UTC()})
			}
		}
	}()
}
