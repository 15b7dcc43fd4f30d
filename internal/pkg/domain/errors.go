package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

//ErrValidation is matched by every ValidationError through errors.Is
var ErrValidation = errors.New("validation error")

//ValidationError is returned for input that is rejected before anything is stored
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

//NewValidationError creates a ValidationError for a named field
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

//ParseSensorType validates a sensor type received from a client
func ParseSensorType(s string) (SensorType, error) {
	t := SensorType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", NewValidationError("type", "must be one of: temp, humidity, co2")
	}
	return t, nil
}

//ParseDevice validates a device name received from a client
func ParseDevice(s string) (Device, error) {
	d := Device(strings.TrimSpace(s))
	if !d.Valid() {
		return "", NewValidationError("device", "must be one of: fan, heater, humidifier")
	}
	return d, nil
}

//ParseAction validates a manual override action
func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	switch a {
	case ActionOn, ActionOff, ActionAuto:
		return a, nil
	}
	return "", NewValidationError("action", "must be one of: on, off, auto")
}

//Validate checks the parts of a Reading that parsing alone cannot guarantee. Any
//sensor id is accepted, including an empty one.
func (r *Reading) Validate() error {
	if !r.Type.Valid() {
		return NewValidationError("type", "must be one of: temp, humidity, co2")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return NewValidationError("value", "must be a finite number")
	}
	return nil
}
