package model

import "time"

type AlarmKind string

const (
	AlarmOverVoltage  AlarmKind = "Sobretensão"
	AlarmUnderVoltage AlarmKind = "Subtensão"
)

// AllDevices is the filter value that selects every BESS.
const AllDevices = "Todos"

func (k AlarmKind) Valid() bool {
	return k == AlarmOverVoltage || k == AlarmUnderVoltage
}

type Reading struct {
	ID         int64     `json:"id,omitempty"`
	BessID     string    `json:"id_bess"`
	Voltage    float64   `json:"tensao"`
	Current    float64   `json:"corrente"`
	Power      float64   `json:"potencia"`
	ObservedAt time.Time `json:"timestamp"`
}

type Alarm struct {
	ID         int64     `json:"id,omitempty"`
	BessID     string    `json:"id_bess"`
	Kind       AlarmKind `json:"tipo_alarme"`
	Message    string    `json:"mensagem"`
	ObservedAt time.Time `json:"timestamp"`
}

// Limits bounds the accepted voltage of one BESS.
type Limits struct {
	Max float64 `json:"max" yaml:"max"`
	Min float64 `json:"min" yaml:"min"`
}

type DeviceSummary struct {
	BessID      string  `json:"id_bess"`
	Samples     int     `json:"samples"`
	Latest      Reading `json:"latest"`
	MinVoltage  float64 `json:"min_tensao"`
	MaxVoltage  float64 `json:"max_tensao"`
	MeanVoltage float64 `json:"mean_tensao"`
	Alarms      int     `json:"alarms"`
}
