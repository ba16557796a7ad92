package simulator

import (
	"math"
	"math/rand"
	"time"

	"bessmon/internal/model"
)

// Profile describes the synthetic signal of one BESS.
type Profile struct {
	BessID         string
	BaseVoltage    float64
	Amplitude      float64
	Phase          float64
	CurrentMin     float64
	CurrentMax     float64
	PowerFactorMin float64
	PowerFactorMax float64
}

const noise = 0.5

// Simulator produces one reading per profile on every Next call. The
// voltage follows a sine wave around the profile base with a small uniform
// noise. It is not safe for concurrent use.
type Simulator struct {
	profiles  []Profile
	frequency float64
	step      float64
	t         float64
	rnd       *rand.Rand
	now       func() time.Time
}

type Option func(*Simulator)

func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func New(profiles []Profile, frequency, step float64, opts ...Option) *Simulator {
	s := &Simulator{
		profiles:  append([]Profile(nil), profiles...),
		frequency: frequency,
		step:      step,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the readings for the current tick and advances the wave.
func (s *Simulator) Next() []model.Reading {
	ts := s.now().UTC()
	out := make([]model.Reading, 0, len(s.profiles))
	for _, p := range s.profiles {
		wave := p.BaseVoltage + p.Amplitude*math.Sin(s.frequency*s.t+p.Phase)
		v := round2(wave + s.uniform(-noise, noise))
		out = append(out, model.Reading{
			BessID:     p.BessID,
			Voltage:    v,
			Current:    round2(s.uniform(p.CurrentMin, p.CurrentMax)),
			Power:      round2(v * s.uniform(p.PowerFactorMin, p.PowerFactorMax)),
			ObservedAt: ts,
		})
	}
	s.t += s.step
	return out
}

// elapsed is the current position on the wave.
func (s *Simulator) elapsed() float64 {
	return s.t
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rnd.Float64()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
