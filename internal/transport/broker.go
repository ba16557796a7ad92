package transport

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// EmbeddedBroker is an in-process MQTT broker for running the publisher and
// dashboard without a public broker. It accepts every client.
type EmbeddedBroker struct {
	server *mochi.Server
	addr   string
}

func StartEmbeddedBroker(addr string, logger *slog.Logger) (*EmbeddedBroker, error) {
	return startGuardedBroker(addr, logger, new(auth.AllowHook), nil)
}

// startGuardedBroker runs a broker guarded by the given auth hook and its config.
func startGuardedBroker(addr string, logger *slog.Logger, hook mochi.Hook, hookConfig any) (*EmbeddedBroker, error) {
	opts := &mochi.Options{}
	if logger != nil {
		opts.Logger = logger.With("component", "mqtt_broker")
	}
	server := mochi.New(opts)
	if err := server.AddHook(hook, hookConfig); err != nil {
		return nil, fmt.Errorf("embedded broker auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "bessmon-tcp",
		Type:    "tcp",
		Address: addr,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("embedded broker listen %s: %w", addr, err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("embedded broker serve: %w", err)
	}
	if logger != nil {
		logger.Info("embedded mqtt broker started", "addr", addr)
	}
	return &EmbeddedBroker{server: server, addr: addr}, nil
}

func (b *EmbeddedBroker) Addr() string {
	return b.addr
}

func (b *EmbeddedBroker) Close() error {
	return b.server.Close()
}
