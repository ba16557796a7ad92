package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bessmon/internal/config"
	"bessmon/internal/model"
)

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

const (
	TableReadings = "medicoes"
	TableAlarms   = "alarmes"
)

// Store persists readings and alarms. Rows are immutable once written; the
// only mutations are inserts and whole-table clears. List methods return
// rows newest first; a limit <= 0 returns every row.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReading(ctx context.Context, r model.Reading) (int64, error)
	SaveAlarm(ctx context.Context, a model.Alarm) (int64, error)
	ListReadings(ctx context.Context, limit int) ([]model.Reading, error)
	ListAlarms(ctx context.Context, limit int) ([]model.Alarm, error)
	CountReadings(ctx context.Context) (int, error)
	CountAlarms(ctx context.Context) (int, error)
	ClearReadings(ctx context.Context) error
	ClearAlarms(ctx context.Context) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// baseStore holds the SQL shared by every driver. Drivers differ in schema
// and placeholder syntax only.
type baseStore struct {
	db          *sql.DB
	schema      []string
	placeholder func(n int) string
}

func (b *baseStore) Init(ctx context.Context) error {
	for _, stmt := range b.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) args(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = b.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func (b *baseStore) insert(ctx context.Context, stmt string, args ...any) (int64, error) {
	var id int64
	if err := b.db.QueryRowContext(ctx, stmt+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (b *baseStore) SaveReading(ctx context.Context, r model.Reading) (int64, error) {
	id, err := b.insert(ctx,
		`INSERT INTO `+TableReadings+` (id_bess, tensao, corrente, potencia, timestamp) VALUES (`+b.args(5)+`)`,
		r.BessID,
		r.Voltage,
		r.Current,
		r.Power,
		formatTime(r.ObservedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("save reading: %w", err)
	}
	return id, nil
}

func (b *baseStore) SaveAlarm(ctx context.Context, a model.Alarm) (int64, error) {
	id, err := b.insert(ctx,
		`INSERT INTO `+TableAlarms+` (id_bess, tipo_alarme, mensagem, timestamp) VALUES (`+b.args(4)+`)`,
		a.BessID,
		string(a.Kind),
		a.Message,
		formatTime(a.ObservedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("save alarm: %w", err)
	}
	return id, nil
}

func (b *baseStore) ListReadings(ctx context.Context, limit int) ([]model.Reading, error) {
	query := `SELECT id, id_bess, tensao, corrente, potencia, timestamp FROM ` + TableReadings + ` ORDER BY id DESC`
	rows, err := b.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()
	out := make([]model.Reading, 0)
	for rows.Next() {
		var (
			r  model.Reading
			ts string
		)
		if err := rows.Scan(&r.ID, &r.BessID, &r.Voltage, &r.Current, &r.Power, &ts); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.ObservedAt = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *baseStore) ListAlarms(ctx context.Context, limit int) ([]model.Alarm, error) {
	query := `SELECT id, id_bess, tipo_alarme, mensagem, timestamp FROM ` + TableAlarms + ` ORDER BY id DESC`
	rows, err := b.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()
	out := make([]model.Alarm, 0)
	for rows.Next() {
		var (
			a    model.Alarm
			kind string
			ts   string
		)
		if err := rows.Scan(&a.ID, &a.BessID, &kind, &a.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a.Kind = model.AlarmKind(kind)
		a.ObservedAt = parseTime(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *baseStore) query(ctx context.Context, query string, limit int) (*sql.Rows, error) {
	if limit > 0 {
		return b.db.QueryContext(ctx, query+` LIMIT `+b.placeholder(1), limit)
	}
	return b.db.QueryContext(ctx, query)
}

func (b *baseStore) CountReadings(ctx context.Context) (int, error) {
	return b.count(ctx, TableReadings)
}

func (b *baseStore) CountAlarms(ctx context.Context) (int, error) {
	return b.count(ctx, TableAlarms)
}

func (b *baseStore) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (b *baseStore) ClearReadings(ctx context.Context) error {
	return b.clear(ctx, TableReadings)
}

func (b *baseStore) ClearAlarms(ctx context.Context) error {
	return b.clear(ctx, TableAlarms)
}

func (b *baseStore) clear(ctx context.Context, table string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
