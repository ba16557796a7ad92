package alarm

import (
	"fmt"

	"bessmon/internal/model"
)

// Check compares a reading against its device limits and returns the alarm
// it raises, if any. Upper and lower bounds are strict.
func Check(r model.Reading, limits model.Limits) (model.Alarm, bool) {
	var (
		kind model.AlarmKind
		msg  string
	)
	switch {
	case r.Voltage > limits.Max:
		kind = model.AlarmOverVoltage
		msg = fmt.Sprintf("Tensão de %sV excedeu o limite máximo de %sV.", model.FormatDecimal(r.Voltage), model.FormatDecimal(limits.Max))
	case r.Voltage < limits.Min:
		kind = model.AlarmUnderVoltage
		msg = fmt.Sprintf("Tensão de %sV está abaixo do limite mínimo de %sV.", model.FormatDecimal(r.Voltage), model.FormatDecimal(limits.Min))
	default:
		return model.Alarm{}, false
	}
	return model.Alarm{
		BessID:     r.BessID,
		Kind:       kind,
		Message:    msg,
		ObservedAt: r.ObservedAt,
	}, true
}

// Checker holds per-device limits. Devices without limits never alarm.
type Checker struct {
	limits map[string]model.Limits
}

func NewChecker(limits map[string]model.Limits) *Checker {
	copied := make(map[string]model.Limits, len(limits))
	for id, l := range limits {
		copied[id] = l
	}
	return &Checker{limits: copied}
}

func (c *Checker) Check(r model.Reading) (model.Alarm, bool) {
	if c == nil {
		return model.Alarm{}, false
	}
	limits, ok := c.limits[r.BessID]
	if !ok {
		return model.Alarm{}, false
	}
	return Check(r, limits)
}
