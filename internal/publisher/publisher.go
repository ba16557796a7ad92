package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bessmon/internal/alarm"
	"bessmon/internal/codec"
	"bessmon/internal/config"
	"bessmon/internal/metrics"
	"bessmon/internal/model"
	"bessmon/internal/simulator"
	"bessmon/internal/transport"
)

// Publisher drives the simulator and publishes every reading, plus any alarm
// it raises, through a transport client.
type Publisher struct {
	cfg      *config.Manager
	client   transport.Client
	sim      *simulator.Simulator
	cooldown *alarm.Cooldown
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg *config.Manager, client transport.Client, m *metrics.Metrics, logger *slog.Logger, opts ...simulator.Option) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := cfg.Get()
	return &Publisher{
		cfg:      cfg,
		client:   client,
		sim:      simulator.New(Profiles(c.Publisher.Profiles), c.Publisher.Frequency, c.Publisher.Step, opts...),
		cooldown: alarm.NewCooldown(c.Publisher.AlarmCooldown),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func Profiles(in []config.ProfileConfig) []simulator.Profile {
	out := make([]simulator.Profile, 0, len(in))
	for _, p := range in {
		out = append(out, simulator.Profile{
			BessID:         p.BessID,
			BaseVoltage:    p.BaseVoltage,
			Amplitude:      p.Amplitude,
			Phase:          p.Phase,
			CurrentMin:     p.CurrentMin,
			CurrentMax:     p.CurrentMax,
			PowerFactorMin: p.PowerFactorMin,
			PowerFactorMax: p.PowerFactorMax,
		})
	}
	return out
}

// Run publishes one tick per configured interval until ctx is done. A
// disconnected client is reconnected before the tick; the tick is skipped
// when that fails.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Get().Publisher.Interval)
	defer ticker.Stop()
	for {
		if err := p.ensureConnected(ctx); err != nil {
			p.logger.Error("broker unavailable, skipping tick", "err", err)
		} else if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("tick finished with errors", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Publisher) ensureConnected(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}
	return p.client.Connect(ctx)
}

// Tick generates one reading per profile and publishes it. Publish failures
// do not stop the tick; they are logged and returned joined.
func (p *Publisher) Tick(ctx context.Context) error {
	cfg := p.cfg.Get()
	checker := alarm.NewChecker(cfg.Limits)
	var errs []error
	for _, r := range p.sim.Next() {
		if err := p.publishReading(ctx, cfg.Broker.ReadingsTopic, r); err != nil {
			errs = append(errs, err)
		}
		a, ok := checker.Check(r)
		if !ok {
			continue
		}
		p.metrics.AlarmRaised(a.BessID, string(a.Kind))
		p.logger.Warn("alarm raised", "id_bess", a.BessID, "tipo_alarme", a.Kind, "mensagem", a.Message)
		if !cfg.Publisher.PublishAlarms || cfg.Broker.AlarmsTopic == "" {
			continue
		}
		if !p.cooldown.Allow(a, p.now()) {
			continue
		}
		if err := p.publishAlarm(ctx, cfg.Broker.AlarmsTopic, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publishReading(ctx context.Context, topic string, r model.Reading) error {
	payload, err := codec.EncodeReading(r)
	if err == nil {
		err = p.client.Publish(ctx, topic, payload)
	}
	p.metrics.Published(metrics.KindReading, err)
	if err != nil {
		p.logger.Error("publish reading failed", "id_bess", r.BessID, "topic", topic, "err", err)
		return fmt.Errorf("publish reading %s: %w", r.BessID, err)
	}
	p.logger.Info("reading published", "id_bess", r.BessID, "tensao", r.Voltage, "corrente", r.Current, "potencia", r.Power)
	return nil
}

func (p *Publisher) publishAlarm(ctx context.Context, topic string, a model.Alarm) error {
	payload, err := codec.EncodeAlarm(a)
	if err == nil {
		err = p.client.Publish(ctx, topic, payload)
	}
	p.metrics.Published(metrics.KindAlarm, err)
	if err != nil {
		p.logger.Error("publish alarm failed", "id_bess", a.BessID, "topic", topic, "err", err)
		return fmt.Errorf("publish alarm %s: %w", a.BessID, err)
	}
	return nil
}
