package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestThatReadingTimestampIsEncodedWithZSuffix(t *testing.T) {
	r := Reading{ID: 3, SensorID: "s1", Type: CO2, Value: 800, Timestamp: time.Date(2024, 5, 1, 14, 0, 0, 123456789, time.FixedZone("CEST", 7200))}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err.Error())
	}

	expected := `{"id":3,"sensor_id":"s1","type":"co2","value":800,"ts":"2024-05-01T12:00:00.123Z"}`
	if string(b) != expected {
		t.Errorf("Unexpected encoding %s", string(b))
	}
}

func TestThatSnapshotWithoutLastChangeEncodesNull(t *testing.T) {
	b, _ := json.Marshal(ActuatorSnapshot{Device: Fan, Mode: ModeAuto, State: StateOff})

	if string(b) != `{"mode":"auto","state":"off","last_change":null}` {
		t.Errorf("Unexpected encoding %s", string(b))
	}
}

func TestThatEventsKeepAllFields(t *testing.T) {
	e := ActuatorEvent{ID: 1, Device: Heater, Action: ActionAuto, Reason: ReasonManual, Mode: ModeAuto, State: StateOff, Timestamp: time.Unix(0, 0)}

	b, _ := json.Marshal(e)
	for _, part := range []string{`"device":"heater"`, `"action":"auto"`, `"reason":"manual"`, `"ts":"1970-01-01T00:00:00.000Z"`} {
		if !strings.Contains(string(b), part) {
			t.Errorf("Expected %s in %s", part, string(b))
		}
	}
}
