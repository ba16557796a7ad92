package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bessmon/internal/config"
	"bessmon/internal/logging"
	"bessmon/internal/metrics"
	"bessmon/internal/publisher"
	"bessmon/internal/transport"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a yaml or json config file; built-in defaults when empty")
	initConfig := flag.String("init-config", "", "write the default config to this path and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address when set")
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
	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctxShutdown)
		}()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	client, err := transport.New(cfg.Broker, "publisher", logger)
	if err != nil {
		logger.Error("build transport", "kind", cfg.Broker.Kind, "err", err)
		return 1
	}
	defer client.Close()
	if err := client.Connect(ctx); err != nil {
		logger.Error("broker connect failed", "err", err)
		return 1
	}
	m.SetConnected(true)

	go mgr.Watch(0, func(*config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "path", mgr.Path(), "err", err)
	}, ctx.Done())

	logger.Info("publisher started",
		"version", version,
		"broker", cfg.Broker.Kind,
		"readings_topic", cfg.Broker.ReadingsTopic,
		"alarms_topic", cfg.Broker.AlarmsTopic,
		"interval", cfg.Publisher.Interval,
	)
	if err := publisher.New(mgr, client, m, logger).Run(ctx); err != nil {
		logger.Error("publisher stopped", "err", err)
		return 1
	}
	logger.Info("publisher stopped")
	return 0
}
