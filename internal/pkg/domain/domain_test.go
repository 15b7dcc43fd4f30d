package domain

import (
	"errors"
	"math"
	"testing"
)

func TestThatEachSensorTypeHasAGoverningDevice(t *testing.T) {
	expected := map[SensorType]Device{
		CO2:         Fan,
		Temperature: Heater,
		Humidity:    Humidifier,
	}

	for sensorType, device := range expected {
		if sensorType.GoverningDevice() != device {
			t.Errorf("%s should govern %s, but governs %s", sensorType, device, sensorType.GoverningDevice())
		}
	}
}

func TestThatParseSensorTypeRejectsUnknownTypes(t *testing.T) {
	_, err := ParseSensorType("pressure")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestThatParseDeviceAcceptsKnownDevices(t *testing.T) {
	for _, name := range []string{"fan", "heater", "humidifier"} {
		if _, err := ParseDevice(name); err != nil {
			t.Errorf("ParseDevice(%s) failed: %s", name, err.Error())
		}
	}

	if _, err := ParseDevice("sprinkler"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected a validation error for sprinkler, got %v", err)
	}
}

func TestThatParseActionRejectsUnknownActions(t *testing.T) {
	if _, err := ParseAction("toggle"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestReadingValidation(t *testing.T) {
	cases := []struct {
		name    string
		reading Reading
		valid   bool
	}{
		{"ok", Reading{SensorID: "temp-1", Type: Temperature, Value: 21.0}, true},
		{"missing sensor id", Reading{Type: Temperature, Value: 21.0}, false},
		{"unknown type", Reading{SensorID: "x", Type: "pressure", Value: 1.0}, false},
		{"nan", Reading{SensorID: "x", Type: CO2, Value: math.NaN()}, false},
	}

	for _, c := range cases {
		err := c.reading.Validate()
		if c.valid && err != nil {
			t.Errorf("%s: unexpected error %s", c.name, err.Error())
		}
		if !c.valid && !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected a validation error, got %v", c.name, err)
		}
	}
}
