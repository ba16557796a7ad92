package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"bessmon/internal/codec"
	"bessmon/internal/config"
	"bessmon/internal/metrics"
	"bessmon/internal/model"
	"bessmon/internal/relay"
	"bessmon/internal/storage"
	"bessmon/internal/transport"
)

const lastMessageTimeLayout = "2006-01-02 15:04:05"

// ConnectionChecker reports whether the transport is currently connected.
type ConnectionChecker interface {
	IsConnected() bool
}

// Broadcaster notifies live subscribers that a new view was rendered.
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

// Loop owns the render cycle. It is the only reader of the relay and the
// only writer of readings and alarms.
type Loop struct {
	cfg     *config.Manager
	relay   *relay.Relay[transport.Message]
	store   storage.Store
	conn    ConnectionChecker
	hub     Broadcaster
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewLoop(cfg *config.Manager, rl *relay.Relay[transport.Message], store storage.Store, conn ConnectionChecker, hub Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		cfg:     cfg,
		relay:   rl,
		store:   store,
		conn:    conn,
		hub:     hub,
		metrics: m,
		logger:  logger,
	}
}

// Enqueue is the transport callback. It runs on the transport's goroutine
// and never touches storage.
func (l *Loop) Enqueue(msg transport.Message) {
	l.relay.Enqueue(msg)
	l.metrics.Received(msg.Topic)
	l.metrics.SetRelayDepth(l.relay.Len())
}

// Run executes Cycle at the configured refresh interval until ctx is done.
// A persistence failure stops the loop and is returned.
func (l *Loop) Run(ctx context.Context, st *State) error {
	for {
		if err := l.Cycle(ctx, st); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		timer := time.NewTimer(l.cfg.Get().Dashboard.RefreshInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Cycle drains the relay, persists every decodable message in arrival
// order, then queries storage and renders a fresh view into st.
func (l *Loop) Cycle(ctx context.Context, st *State) error {
	start := time.Now()
	err := l.cycle(ctx, st)
	l.metrics.ObserveCycle(time.Since(start), err)
	return err
}

func (l *Loop) cycle(ctx context.Context, st *State) error {
	cfg := l.cfg.Get()
	msgs := l.relay.DrainAll()
	l.metrics.SetRelayDepth(l.relay.Len())
	for _, msg := range msgs {
		if err := l.persist(ctx, cfg, st, msg); err != nil {
			return err
		}
	}

	if l.conn != nil {
		connected := l.conn.IsConnected()
		st.observeConnection(connected)
		l.metrics.SetConnected(connected)
	}

	view, err := l.render(ctx, cfg, st)
	if err != nil {
		return err
	}
	st.setView(view)
	if l.hub != nil {
		l.hub.Broadcast("view", view.Notice())
	}
	return nil
}

func (l *Loop) persist(ctx context.Context, cfg *config.Config, st *State, msg transport.Message) error {
	switch msg.Topic {
	case cfg.Broker.ReadingsTopic:
		r, err := codec.DecodeReading(msg.Payload, msg.ReceivedAt)
		if err != nil {
			l.metrics.DecodeFailed(metrics.KindReading)
			l.logger.Warn("dropping reading", "topic", msg.Topic, "err", err)
			return nil
		}
		id, err := l.store.SaveReading(ctx, r)
		if err != nil {
			return fmt.Errorf("persist reading from %s: %w", r.BessID, err)
		}
		l.metrics.Persisted(storage.TableReadings)
		st.setLastMessage(FormatLastMessage(r))
		l.logger.Debug("reading stored", "id", id, "id_bess", r.BessID, "tensao", r.Voltage)
	case cfg.Broker.AlarmsTopic:
		if !cfg.Dashboard.StoreAlarms {
			return nil
		}
		a, err := codec.DecodeAlarm(msg.Payload, msg.ReceivedAt)
		if err != nil {
			l.metrics.DecodeFailed(metrics.KindAlarm)
			l.logger.Warn("dropping alarm", "topic", msg.Topic, "err", err)
			return nil
		}
		id, err := l.store.SaveAlarm(ctx, a)
		if err != nil {
			return fmt.Errorf("persist alarm from %s: %w", a.BessID, err)
		}
		l.metrics.Persisted(storage.TableAlarms)
		l.logger.Info("alarm stored", "id", id, "id_bess", a.BessID, "tipo_alarme", a.Kind)
	default:
		l.logger.Debug("ignoring message on unknown topic", "topic", msg.Topic)
	}
	return nil
}

func (l *Loop) render(ctx context.Context, cfg *config.Config, st *State) (View, error) {
	limit := cfg.Dashboard.HistoryLimit
	readings, err := l.store.ListReadings(ctx, limit)
	if err != nil {
		return View{}, fmt.Errorf("query readings: %w", err)
	}
	alarms, err := l.store.ListAlarms(ctx, limit)
	if err != nil {
		return View{}, fmt.Errorf("query alarms: %w", err)
	}
	readingCount, err := l.store.CountReadings(ctx)
	if err != nil {
		return View{}, fmt.Errorf("count readings: %w", err)
	}
	alarmCount, err := l.store.CountAlarms(ctx)
	if err != nil {
		return View{}, fmt.Errorf("count alarms: %w", err)
	}
	connected, status := st.Connection()
	return View{
		RenderedAt:   time.Now().UTC(),
		Connected:    connected,
		Status:       status,
		LastMessage:  st.LastMessage(),
		Filter:       model.AllDevices,
		Devices:      devices(readings, alarms),
		Readings:     readings,
		Alarms:       alarms,
		Summaries:    Summarize(readings, alarms),
		ReadingCount: readingCount,
		AlarmCount:   alarmCount,
	}, nil
}

// FormatLastMessage renders the one-line description of the newest reading.
func FormatLastMessage(r model.Reading) string {
	return fmt.Sprintf("ID: %s | Tensão: %sV | Corrente: %sA | Potência: %skW (às %s)",
		r.BessID,
		model.FormatDecimal(r.Voltage),
		model.FormatDecimal(r.Current),
		model.FormatDecimal(r.Power),
		r.ObservedAt.Local().Format(lastMessageTimeLayout),
	)
}

// devices lists the filter options: model.AllDevices first, then every
// BESS seen in readings or alarms in lexical order.
func devices(readings []model.Reading, alarms []model.Alarm) []string {
	seen := make(map[string]struct{})
	for _, r := range readings {
		seen[r.BessID] = struct{}{}
	}
	for _, a := range alarms {
		seen[a.BessID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return append([]string{model.AllDevices}, ids...)
}

// Summarize aggregates readings per BESS. Readings must be newest first, so
// the first reading seen for a device is its latest.
func Summarize(readings []model.Reading, alarms []model.Alarm) []model.DeviceSummary {
	byID := make(map[string]*model.DeviceSummary)
	order := make([]string, 0)
	sums := make(map[string]float64)
	for _, r := range readings {
		s, ok := byID[r.BessID]
		if !ok {
			s = &model.DeviceSummary{
				BessID:     r.BessID,
				Latest:     r,
				MinVoltage: r.Voltage,
				MaxVoltage: r.Voltage,
			}
			byID[r.BessID] = s
			order = append(order, r.BessID)
		}
		s.Samples++
		sums[r.BessID] += r.Voltage
		if r.Voltage < s.MinVoltage {
			s.MinVoltage = r.Voltage
		}
		if r.Voltage > s.MaxVoltage {
			s.MaxVoltage = r.Voltage
		}
	}
	for _, a := range alarms {
		s, ok := byID[a.BessID]
		if !ok {
			s = &model.DeviceSummary{BessID: a.BessID}
			byID[a.BessID] = s
			order = append(order, a.BessID)
		}
		s.Alarms++
	}
	sort.Strings(order)
	out := make([]model.DeviceSummary, 0, len(order))
	for _, id := range order {
		s := byID[id]
		if s.Samples > 0 {
			s.MeanVoltage = sums[id] / float64(s.Samples)
		}
		out = append(out, *s)
	}
	return out
}

