package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/automation"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
)

const (
	DefaultLimit int = 100
	MaxLimit     int = 1000
)

//Service implements the operations offered to callers, independent of transport
type Service struct {
	engine *automation.Engine
	db     database.Datastore
	log    logging.Logger
}

func NewService(engine *automation.Engine, db database.Datastore, log logging.Logger) *Service {
	return &Service{engine: engine, db: db, log: log}
}

//ReadingPayload is the wire format of a reading sent by a sensor
type ReadingPayload struct {
	SensorID  string   `json:"sensor_id"`
	Type      string   `json:"type"`
	Value     *float64 `json:"value"`
	Timestamp *string  `json:"ts,omitempty"`
}

//ToReading validates the payload and converts it into a Reading. A missing
//timestamp is left as the zero time.
func (p ReadingPayload) ToReading() (domain.Reading, error) {
	t, err := domain.ParseSensorType(p.Type)
	if err != nil {
		return domain.Reading{}, err
	}

	if p.Value == nil {
		return domain.Reading{}, domain.NewValidationError("value", "is required")
	}

	r := domain.Reading{
		SensorID: p.SensorID,
		Type:     t,
		Value:    *p.Value,
	}

	if p.Timestamp != nil && *p.Timestamp != "" {
		r.Timestamp, err = clock.Parse(*p.Timestamp)
		if err != nil {
			return domain.Reading{}, domain.NewValidationError("ts", err.Error())
		}
	}

	return r, r.Validate()
}

//DecodeReading parses a JSON encoded ReadingPayload
func DecodeReading(body []byte) (domain.Reading, error) {
	payload := ReadingPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Reading{}, domain.NewValidationError("body", fmt.Sprintf("is not a valid reading: %s", err.Error()))
	}

	return payload.ToReading()
}

//Ingest hands a reading to the automation engine
func (s *Service) Ingest(r domain.Reading) (automation.IngestResult, error) {
	return s.engine.Ingest(r)
}

//IngestPayload decodes and ingests a raw JSON reading
func (s *Service) IngestPayload(body []byte) error {
	r, err := DecodeReading(body)
	if err != nil {
		return err
	}

	_, err = s.engine.Ingest(r)
	return err
}

//GetActuator returns the live state of one device
func (s *Service) GetActuator(device string) (domain.ActuatorSnapshot, error) {
	d, err := domain.ParseDevice(device)
	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	return s.engine.Actuator(d)
}

//ListActuators returns the live state of all three devices keyed on device name
func (s *Service) ListActuators() map[domain.Device]domain.ActuatorSnapshot {
	result := map[domain.Device]domain.ActuatorSnapshot{}
	for _, snapshot := range s.engine.Actuators() {
		result[snapshot.Device] = snapshot
	}
	return result
}

//SetActuator performs a manual override
func (s *Service) SetActuator(device, action string) (domain.ActuatorSnapshot, error) {
	d, err := domain.ParseDevice(device)
	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	a, err := domain.ParseAction(action)
	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	return s.engine.SetActuator(d, a)
}

//ControlPayload is the wire format of a manual override
type ControlPayload struct {
	Action string `json:"action"`
}

//ControlFromPayload decodes a JSON encoded ControlPayload and applies it to device
func (s *Service) ControlFromPayload(device string, body []byte) error {
	payload := ControlPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.NewValidationError("body", fmt.Sprintf("is not a valid command: %s", err.Error()))
	}

	_, err := s.SetActuator(device, payload.Action)
	return err
}

//ClampLimit applies the default and maximum number of records a list returns
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

//ListActuatorHistory returns the most recent actuator events, newest first. An
//empty device matches every device.
func (s *Service) ListActuatorHistory(ctx context.Context, device string, limit int) ([]domain.ActuatorEvent, error) {
	q := database.EventQuery{Limit: ClampLimit(limit)}

	if device != "" {
		d, err := domain.ParseDevice(device)
		if err != nil {
			return nil, err
		}
		q.Device = d
	}

	events, err := s.db.GetActuatorEvents(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to read actuator history: %w", err)
	}

	return events, nil
}

//ListAlerts returns the most recent alerts, newest first. If the datastore
//cannot be read the in-memory history is used instead.
func (s *Service) ListAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	limit = ClampLimit(limit)

	alerts, err := s.db.GetAlerts(ctx, limit)
	if err != nil {
		s.log.Warnf("falling back to in-memory alerts: %s", err.Error())
		return s.engine.RecentAlerts(limit), nil
	}

	return alerts, nil
}

//ListReadings returns the most recent readings, newest first, optionally for a
//single sensor. If the datastore cannot be read the in-memory history is used instead.
func (s *Service) ListReadings(ctx context.Context, sensorID string, limit int) ([]domain.Reading, error) {
	limit = ClampLimit(limit)

	readings, err := s.db.GetReadings(ctx, database.ReadingQuery{SensorID: sensorID, Limit: limit})
	if err != nil {
		s.log.Warnf("falling back to in-memory readings: %s", err.Error())
		return s.engine.RecentReadings(sensorID, "", limit), nil
	}

	return readings, nil
}

//Latest returns the most recent value per sensor type, 0 for types without readings
func (s *Service) Latest(ctx context.Context) map[domain.SensorType]float64 {
	result := map[domain.SensorType]float64{}

	for _, t := range domain.SensorTypes {
		result[t] = 0.0

		readings, err := s.db.GetReadings(ctx, database.ReadingQuery{Type: t, Limit: 1})
		if err != nil {
			s.log.Warnf("falling back to in-memory readings for latest %s: %s", t, err.Error())
			readings = s.engine.RecentReadings("", t, 1)
		}

		if len(readings) > 0 {
			result[t] = readings[0].Value
		}
	}

	return result
}

//HealthStatus reports liveness and whether the datastore is reachable
type HealthStatus struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func (s *Service) Health(ctx context.Context) HealthStatus {
	h := HealthStatus{Status: "ok", Storage: "ok"}

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warnf("datastore health check failed: %s", err.Error())
		h.Storage = "unavailable"
	}

	return h
}
