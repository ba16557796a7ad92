package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bessmon/internal/model"
)

func TestCheck(t *testing.T) {
	limits := model.Limits{Max: 497, Min: 400}
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		voltage  float64
		wantKind model.AlarmKind
		wantMsg  string
		raised   bool
	}{
		{"over", 500, model.AlarmOverVoltage, "Tensão de 500.0V excedeu o limite máximo de 497.0V.", true},
		{"under", 399.5, model.AlarmUnderVoltage, "Tensão de 399.5V está abaixo do limite mínimo de 400.0V.", true},
		{"in range", 485, "", "", false},
		{"at max", 497, "", "", false},
		{"at min", 400, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := model.Reading{BessID: "BESS001", Voltage: tt.voltage, ObservedAt: ts}
			a, ok := Check(r, limits)
			require.Equal(t, tt.raised, ok)
			if !tt.raised {
				return
			}
			require.Equal(t, "BESS001", a.BessID)
			require.Equal(t, tt.wantKind, a.Kind)
			require.Equal(t, tt.wantMsg, a.Message)
			require.Equal(t, ts, a.ObservedAt)
		})
	}
}

func TestCheckerUnknownDevice(t *testing.T) {
	c := NewChecker(map[string]model.Limits{"BESS001": {Max: 497, Min: 400}})
	_, ok := c.Check(model.Reading{BessID: "BESS009", Voltage: 10000})
	require.False(t, ok)

	a, ok := c.Check(model.Reading{BessID: "BESS001", Voltage: 500, Current: 155, Power: 78})
	require.True(t, ok)
	require.Equal(t, model.AlarmOverVoltage, a.Kind)
	require.Contains(t, a.Message, "500.0V")
}

func TestCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	over := model.Alarm{BessID: "BESS001", Kind: model.AlarmOverVoltage}
	under := model.Alarm{BessID: "BESS001", Kind: model.AlarmUnderVoltage}

	c := NewCooldown(5 * time.Second)
	require.True(t, c.Allow(over, now))
	require.False(t, c.Allow(over, now.Add(time.Second)))
	require.True(t, c.Allow(under, now.Add(time.Second)))
	require.True(t, c.Allow(over, now.Add(5*time.Second)))

	off := NewCooldown(0)
	require.True(t, off.Allow(over, now))
	require.True(t, off.Allow(over, now))
}
