package domain

import (
	"encoding/json"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
)

//Timestamps leave the service as UTC with a Z suffix and millisecond precision,
//regardless of the transport.

func (r Reading) MarshalJSON() ([]byte, error) {
	type reading Reading
	return json.Marshal(struct {
		reading
		Timestamp string `json:"ts"`
	}{reading(r), clock.Format(r.Timestamp)})
}

func (a Alert) MarshalJSON() ([]byte, error) {
	type alert Alert
	return json.Marshal(struct {
		alert
		Timestamp string `json:"ts"`
	}{alert(a), clock.Format(a.Timestamp)})
}

func (e ActuatorEvent) MarshalJSON() ([]byte, error) {
	type event ActuatorEvent
	return json.Marshal(struct {
		event
		Timestamp string `json:"ts"`
	}{event(e), clock.Format(e.Timestamp)})
}

func (s ActuatorSnapshot) MarshalJSON() ([]byte, error) {
	type snapshot ActuatorSnapshot
	return json.Marshal(struct {
		snapshot
		LastChange *string `json:"last_change"`
	}{snapshot(s), clock.FormatPtr(s.LastChange)})
}
