package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bessmon/internal/model"
)

const legacyTimeLayout = "2006-01-02 15:04:05"

var (
	ErrMissingDevice  = errors.New("payload missing id_bess")
	ErrMissingVoltage = errors.New("payload missing tensao")
	ErrUnknownKind    = errors.New("unknown tipo_alarme")
)

type readingWire struct {
	BessID    string   `json:"id_bess"`
	Voltage   *float64 `json:"tensao"`
	Current   float64  `json:"corrente"`
	Power     float64  `json:"potencia"`
	Timestamp string   `json:"timestamp,omitempty"`
}

type alarmWire struct {
	BessID    string `json:"id_bess"`
	Kind      string `json:"tipo_alarme"`
	Message   string `json:"mensagem"`
	Timestamp string `json:"timestamp,omitempty"`
}

func EncodeReading(r model.Reading) ([]byte, error) {
	v := r.Voltage
	return json.Marshal(readingWire{
		BessID:    r.BessID,
		Voltage:   &v,
		Current:   r.Current,
		Power:     r.Power,
		Timestamp: formatTime(r.ObservedAt),
	})
}

func EncodeAlarm(a model.Alarm) ([]byte, error) {
	return json.Marshal(alarmWire{
		BessID:    a.BessID,
		Kind:      string(a.Kind),
		Message:   a.Message,
		Timestamp: formatTime(a.ObservedAt),
	})
}

// DecodeReading parses a flat reading payload. Payloads without a
// timestamp are stamped with receivedAt.
func DecodeReading(data []byte, receivedAt time.Time) (model.Reading, error) {
	var w readingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	id := strings.TrimSpace(w.BessID)
	if id == "" {
		return model.Reading{}, ErrMissingDevice
	}
	if w.Voltage == nil {
		return model.Reading{}, ErrMissingVoltage
	}
	ts, err := parseTime(w.Timestamp, receivedAt)
	if err != nil {
		return model.Reading{}, err
	}
	return model.Reading{
		BessID:     id,
		Voltage:    *w.Voltage,
		Current:    w.Current,
		Power:      w.Power,
		ObservedAt: ts,
	}, nil
}

func DecodeAlarm(data []byte, receivedAt time.Time) (model.Alarm, error) {
	var w alarmWire
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Alarm{}, fmt.Errorf("decode alarm: %w", err)
	}
	id := strings.TrimSpace(w.BessID)
	if id == "" {
		return model.Alarm{}, ErrMissingDevice
	}
	kind := model.AlarmKind(strings.TrimSpace(w.Kind))
	if !kind.Valid() {
		return model.Alarm{}, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
	}
	ts, err := parseTime(w.Timestamp, receivedAt)
	if err != nil {
		return model.Alarm{}, err
	}
	return model.Alarm{
		BessID:     id,
		Kind:       kind,
		Message:    w.Message,
		ObservedAt: ts,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
