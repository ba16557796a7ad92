package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bessmon/internal/config"
)

var ErrNotConnected = errors.New("transport not connected")

// Message is one payload delivered on a topic.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Handler is invoked on the transport's delivery goroutine. It must not
// block for long.
type Handler func(Message)

// Client is a publish/subscribe connection with an explicit lifecycle.
// Connect and Close are idempotent. Subscriptions registered before Connect
// are issued once the connection is up.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
	Subscribe(ctx context.Context, topic string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

// New builds the client selected by cfg.Kind. role is folded into generated
// client IDs so a publisher and a dashboard can share a broker.
func New(cfg config.BrokerConfig, role string, logger *slog.Logger) (Client, error) {
	switch strings.ToLower(cfg.Kind) {
	case "mqtt", "":
		addr := cfg.Address
		if cfg.Embedded.Enabled {
			addr = cfg.Embedded.Addr
		}
		clientID := cfg.ClientID
		if clientID == "" {
			clientID = RandomClientID(role)
		}
		return NewMQTT(MQTTOptions{
			Address:        addr,
			ClientID:       clientID,
			KeepAlive:      cfg.KeepAlive,
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger), nil
	case "kafka":
		return NewKafka(cfg.Kafka.Brokers, cfg.Kafka.GroupID, logger), nil
	case "amqp":
		return NewAMQP(cfg.AMQP.URL, cfg.ConnectTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.Kind)
	}
}

func RandomClientID(role string) string {
	if role == "" {
		role = "client"
	}
	return "bessmon-" + role + "-" + uuid.NewString()[:8]
}

func backoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
