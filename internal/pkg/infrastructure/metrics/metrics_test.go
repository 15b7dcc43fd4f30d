package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

func TestThatReadingsAreCountedPerDurability(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ReadingAccepted(domain.Reading{SensorID: "s1", Type: domain.CO2, Value: 900}, persistence.Durable)
	m.ReadingAccepted(domain.Reading{SensorID: "s1", Type: domain.CO2, Value: 950}, persistence.AcceptedNotDurable)

	if v := testutil.ToFloat64(m.readings.WithLabelValues("co2", "durable")); v != 1 {
		t.Errorf("Expected 1 durable reading, got %f", v)
	}

	if v := testutil.ToFloat64(m.lastValue.WithLabelValues("co2")); v != 950 {
		t.Errorf("Expected last value 950, got %f", v)
	}
}

func TestThatLastValuesAreNotLabelledPerSensor(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	for i := 0; i < 50; i++ {
		m.ReadingAccepted(domain.Reading{SensorID: fmt.Sprintf("sensor-%d", i), Type: domain.Humidity, Value: float64(i)}, persistence.Durable)
	}

	if n := testutil.CollectAndCount(m.lastValue); n != 1 {
		t.Errorf("Expected a single series for humidity, got %d", n)
	}

	if v := testutil.ToFloat64(m.lastValue.WithLabelValues("humidity")); v != 49 {
		t.Errorf("Expected last value 49, got %f", v)
	}
}

func TestThatActuatorStateIsTracked(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ActuatorChanged(
		domain.ActuatorSnapshot{Device: domain.Heater, Mode: domain.ModeManual, State: domain.StateOn},
		domain.ActuatorEvent{Device: domain.Heater, Action: domain.ActionOn, Reason: domain.ReasonManual},
	)

	if v := testutil.ToFloat64(m.actuatorState.WithLabelValues("heater")); v != 1 {
		t.Errorf("Expected heater state 1, got %f", v)
	}

	if v := testutil.ToFloat64(m.actuatorManual.WithLabelValues("heater")); v != 1 {
		t.Errorf("Expected heater to be manual, got %f", v)
	}

	if v := testutil.ToFloat64(m.transitions.WithLabelValues("heater", "on", "manual")); v != 1 {
		t.Errorf("Expected one transition, got %f", v)
	}
}

func TestThatStorageFailuresAreCounted(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.WriteFailed(persistence.KindAlert)
	m.WriteFailed(persistence.KindAlert)
	m.ReadingDowngraded()

	if v := testutil.ToFloat64(m.writeFailures.WithLabelValues("alert")); v != 2 {
		t.Errorf("Expected 2 failures, got %f", v)
	}

	if v := testutil.ToFloat64(m.notDurableTotal); v != 1 {
		t.Errorf("Expected 1 downgraded reading, got %f", v)
	}
}
