package simulator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testProfiles() []Profile {
	return []Profile{
		{BessID: "BESS001", BaseVoltage: 485, Amplitude: 15, CurrentMin: 150, CurrentMax: 160, PowerFactorMin: 0.15, PowerFactorMax: 0.16},
		{BessID: "BESS002", BaseVoltage: 220, Amplitude: 25, Phase: math.Pi, CurrentMin: 90, CurrentMax: 105, PowerFactorMin: 0.18, PowerFactorMax: 0.2},
	}
}

func TestNextStaysWithinEnvelope(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sim := New(testProfiles(), 0.5, 0.5, WithRand(rand.New(rand.NewSource(7))), WithClock(func() time.Time { return fixed }))

	for i := 0; i < 200; i++ {
		tick := sim.elapsed()
		readings := sim.Next()
		require.Len(t, readings, 2)
		for j, r := range readings {
			p := testProfiles()[j]
			require.Equal(t, p.BessID, r.BessID)
			require.Equal(t, fixed, r.ObservedAt)

			wave := p.BaseVoltage + p.Amplitude*math.Sin(0.5*tick+p.Phase)
			require.InDelta(t, wave, r.Voltage, noise+0.01)
			require.GreaterOrEqual(t, r.Current, p.CurrentMin)
			require.LessOrEqual(t, r.Current, p.CurrentMax)
			require.InDelta(t, r.Voltage*(p.PowerFactorMin+p.PowerFactorMax)/2, r.Power, r.Voltage*(p.PowerFactorMax-p.PowerFactorMin)/2+0.01)
			require.Equal(t, r.Voltage, round2(r.Voltage))
		}
	}
	require.InDelta(t, 100.0, sim.elapsed(), 1e-9)
}

func TestPhaseShiftOpposesWaves(t *testing.T) {
	profiles := testProfiles()
	sim := New(profiles, 0.5, math.Pi, WithRand(rand.New(rand.NewSource(1))))
	sim.Next()
	// At 0.5*pi the first wave peaks and the shifted one bottoms out.
	readings := sim.Next()
	require.InDelta(t, 500, readings[0].Voltage, noise+0.01)
	require.InDelta(t, 195, readings[1].Voltage, noise+0.01)
}
