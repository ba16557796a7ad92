package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bessmon/internal/api"
	"bessmon/internal/config"
	"bessmon/internal/dashboard"
	"bessmon/internal/logging"
	"bessmon/internal/metrics"
	"bessmon/internal/relay"
	"bessmon/internal/storage"
	"bessmon/internal/transport"
	"bessmon/internal/websocket"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a yaml or json config file; built-in defaults when empty")
	initConfig := flag.String("init-config", "", "write the default config to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.Save(*initConfig, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			return 1
		}
		return 0
	}

	mgr, err := config.OpenManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "driver", cfg.Storage.Driver, "err", err)
		return 1
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("init storage", "driver", cfg.Storage.Driver, "err", err)
		return 1
	}

	if cfg.Broker.Embedded.Enabled {
		broker, err := transport.StartEmbeddedBroker(cfg.Broker.Embedded.Addr, logger)
		if err != nil {
			logger.Error("start embedded broker", "addr", cfg.Broker.Embedded.Addr, "err", err)
			return 1
		}
		defer broker.Close()
	}

	client, err := transport.New(cfg.Broker, "dashboard", logger)
	if err != nil {
		logger.Error("build transport", "kind", cfg.Broker.Kind, "err", err)
		return 1
	}
	defer client.Close()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	st := dashboard.NewState()
	loop := dashboard.NewLoop(mgr, relay.New[transport.Message](), store, client, hub, m, logger)

	for _, topic := range []string{cfg.Broker.ReadingsTopic, cfg.Broker.AlarmsTopic} {
		if topic == "" {
			continue
		}
		if err := client.Subscribe(ctx, topic, loop.Enqueue); err != nil {
			logger.Warn("subscribe failed", "topic", topic, "err", err)
		}
	}
	connect(ctx, client, st, m, logger)
	go keepConnected(ctx, client, st, m, logger, 5*cfg.Dashboard.RefreshInterval)

	srv := api.New(mgr, st, loop, http.HandlerFunc(hub.ServeWS), m, logger, version)
	if _, err := api.Start(ctx, cfg.Dashboard.Addr, srv.Handler(), logger); err != nil {
		logger.Error("start http server", "addr", cfg.Dashboard.Addr, "err", err)
		return 1
	}

	go mgr.Watch(0, func(c *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path(), "history_limit", c.Dashboard.HistoryLimit)
	}, func(err error) {
		logger.Warn("config reload failed", "path", mgr.Path(), "err", err)
	}, ctx.Done())

	logger.Info("dashboard started", "version", version, "broker", cfg.Broker.Kind, "addr", cfg.Dashboard.Addr)
	if err := loop.Run(ctx, st); err != nil {
		logger.Error("render loop stopped", "err", err)
		return 1
	}
	logger.Info("dashboard stopped")
	return 0
}

func connect(ctx context.Context, client transport.Client, st *dashboard.State, m *metrics.Metrics, logger *slog.Logger) {
	err := client.Connect(ctx)
	st.SetConnected(err)
	m.SetConnected(err == nil)
	if err != nil {
		logger.Error("broker connect failed", "err", err)
	}
}

// keepConnected retries the broker connection while it is down.
func keepConnected(ctx context.Context, client transport.Client, st *dashboard.State, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !client.IsConnected() {
				connect(ctx, client, st, m, logger)
			}
		}
	}
}
