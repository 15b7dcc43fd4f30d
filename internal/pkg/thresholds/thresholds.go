package thresholds

import (
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
)

//Range is the acceptable range for one sensor type. A nil bound is not checked.
type Range struct {
	Min *float64 `mapstructure:"min" json:"min,omitempty"`
	Max *float64 `mapstructure:"max" json:"max,omitempty"`
}

//Table maps each sensor type to its acceptable range. It is loaded once at startup
//and never modified afterwards.
type Table map[domain.SensorType]Range

func bound(v float64) *float64 {
	return &v
}

//DefaultTable returns the ranges used when nothing else is configured
func DefaultTable() Table {
	return Table{
		domain.Temperature: {Min: bound(16.0), Max: bound(26.0)},
		domain.Humidity:    {Min: bound(45.0), Max: bound(80.0)},
		domain.CO2:         {Max: bound(1200.0)},
	}
}

//Verdict is the classification of a single reading
type Verdict struct {
	OutOfRange bool
	BelowMin   bool
	AboveMax   bool
}

//Evaluator classifies readings against a Table
type Evaluator struct {
	table Table
}

//NewEvaluator creates an Evaluator over a copy of table
func NewEvaluator(table Table) *Evaluator {
	t := make(Table, len(table))
	for k, v := range table {
		t[k] = v
	}
	return &Evaluator{table: t}
}

//Range returns the configured range for a sensor type
func (e *Evaluator) Range(t domain.SensorType) (Range, bool) {
	r, ok := e.table[t]
	return r, ok
}

//Evaluate classifies reading r. Bounds are inclusive. temp and humidity need both
//bounds configured to be checked at all, co2 only checks its maximum. A missing
//bound never makes a reading out of range.
func (e *Evaluator) Evaluate(r domain.Reading) Verdict {
	rng, ok := e.table[r.Type]
	if !ok {
		return Verdict{}
	}

	switch r.Type {
	case domain.Temperature, domain.Humidity:
		if rng.Min == nil || rng.Max == nil {
			return Verdict{}
		}
		below := r.Value < *rng.Min
		above := r.Value > *rng.Max
		return Verdict{OutOfRange: below || above, BelowMin: below, AboveMax: above}
	case domain.CO2:
		if rng.Max == nil {
			return Verdict{}
		}
		above := r.Value > *rng.Max
		return Verdict{OutOfRange: above, AboveMax: above}
	}

	return Verdict{}
}
