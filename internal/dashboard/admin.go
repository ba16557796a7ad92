package dashboard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
)

var (
	ErrInvalidSecret = errors.New("invalid admin secret")
	ErrUnknownTarget = errors.New("unknown clear target")
)

const (
	ClearReadings = "readings"
	ClearAlarms   = "alarms"
	ClearAll      = "all"
)

// Clear deletes stored history after checking secret against the configured
// admin secret. Clearing readings also resets the last message.
func (l *Loop) Clear(ctx context.Context, st *State, target, secret string) error {
	want := l.cfg.Get().Dashboard.AdminSecret
	if subtle.ConstantTimeCompare([]byte(secret), []byte(want)) != 1 {
		return ErrInvalidSecret
	}
	switch target {
	case ClearReadings, ClearAlarms, ClearAll:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if target == ClearReadings || target == ClearAll {
		if err := l.store.ClearReadings(ctx); err != nil {
			return fmt.Errorf("clear readings: %w", err)
		}
		st.ResetLastMessage()
	}
	if target == ClearAlarms || target == ClearAll {
		if err := l.store.ClearAlarms(ctx); err != nil {
			return fmt.Errorf("clear alarms: %w", err)
		}
	}
	l.logger.Warn("history cleared", "target", target)
	return nil
}
