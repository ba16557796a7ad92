package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

type MQTTOptions struct {
	Address        string
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// MQTTClient is an MQTT v5 client over plain TCP. Messages are delivered at
// QoS 0. A dropped connection is reported through IsConnected and the log;
// it is not re-established automatically.
type MQTTClient struct {
	opts   MQTTOptions
	logger *slog.Logger

	mu        sync.Mutex
	client    *paho.Client
	connected atomic.Bool

	hmu      sync.RWMutex
	handlers map[string]Handler
}

func NewMQTT(opts MQTTOptions, logger *slog.Logger) *MQTTClient {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = RandomClientID("mqtt")
	}
	return &MQTTClient{
		opts:     opts,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

func (c *MQTTClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.connected.Load() {
		return nil
	}
	if c.client != nil {
		_ = c.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		c.client = nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.opts.Address)
	if err != nil {
		return fmt.Errorf("dial mqtt broker %s: %w", c.opts.Address, err)
	}

	pc := paho.NewClient(paho.ClientConfig{
		ClientID:           c.opts.ClientID,
		Conn:               conn,
		OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.onPublish},
		OnClientError:      c.onClientError,
		OnServerDisconnect: c.onServerDisconnect,
	})
	ack, err := pc.Connect(ctx, &paho.Connect{
		ClientID:   c.opts.ClientID,
		KeepAlive:  uint16(c.opts.KeepAlive.Seconds()),
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mqtt connect %s: %w", c.opts.Address, err)
	}
	if ack != nil && ack.ReasonCode >= 0x80 {
		_ = conn.Close()
		return fmt.Errorf("mqtt connect %s: refused with reason code 0x%02x", c.opts.Address, ack.ReasonCode)
	}
	c.client = pc
	c.connected.Store(true)
	if c.logger != nil {
		c.logger.Info("mqtt connected", "broker", c.opts.Address, "client_id", c.opts.ClientID)
	}

	c.hmu.RLock()
	filters := make([]string, 0, len(c.handlers))
	for filter := range c.handlers {
		filters = append(filters, filter)
	}
	c.hmu.RUnlock()
	for _, filter := range filters {
		if err := subscribe(ctx, pc, filter); err != nil {
			// drop the session so the next Connect starts over
			c.connected.Store(false)
			_ = pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
			c.client = nil
			return err
		}
	}
	return nil
}

func (c *MQTTClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *MQTTClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	var err error
	if c.connected.Swap(false) {
		err = c.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	c.client = nil
	if c.logger != nil {
		c.logger.Info("mqtt disconnected", "broker", c.opts.Address)
	}
	return err
}

func (c *MQTTClient) Subscribe(ctx context.Context, topic string, h Handler) error {
	c.hmu.Lock()
	c.handlers[topic] = h
	c.hmu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || !c.connected.Load() {
		return nil
	}
	return subscribe(ctx, c.client, topic)
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	pc := c.client
	c.mu.Unlock()
	if pc == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	if _, err := pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func subscribe(ctx context.Context, pc *paho.Client, topic string) error {
	ack, err := pc.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
	})
	if err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	if ack != nil && len(ack.Reasons) > 0 && ack.Reasons[0] >= 0x80 {
		return fmt.Errorf("mqtt subscribe %s: refused with reason code 0x%02x", topic, ack.Reasons[0])
	}
	return nil
}

func (c *MQTTClient) onPublish(pr paho.PublishReceived) (bool, error) {
	msg := Message{
		Topic:      pr.Packet.Topic,
		Payload:    pr.Packet.Payload,
		ReceivedAt: time.Now().UTC(),
	}
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	handled := false
	for filter, h := range c.handlers {
		if topicMatches(filter, msg.Topic) {
			h(msg)
			handled = true
		}
	}
	return handled, nil
}

func (c *MQTTClient) onClientError(err error) {
	c.connected.Store(false)
	if c.logger != nil {
		c.logger.Error("mqtt client error", "broker", c.opts.Address, "err", err)
	}
}

func (c *MQTTClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	if c.logger != nil {
		c.logger.Warn("mqtt server disconnected", "broker", c.opts.Address, "reason_code", d.ReasonCode)
	}
}
