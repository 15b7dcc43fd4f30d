package automation

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/actuators"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/history"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/notification"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/thresholds"
)

//Store is the part of the persistence gateway the engine writes through
type Store interface {
	StoreReading(r domain.Reading) (domain.Reading, persistence.Durability)
	StoreAlert(a domain.Alert) (domain.Alert, bool)
	StoreActuatorEvent(e domain.ActuatorEvent) (domain.ActuatorEvent, bool)
}

//Config holds the tunables of the automation engine
type Config struct {
	NormalStreakTarget        int  `mapstructure:"normal_streak_target"`
	ReadingsCapacity          int  `mapstructure:"readings_capacity"`
	AlertsCapacity            int  `mapstructure:"alerts_capacity"`
	SurfaceDegradedDurability bool `mapstructure:"surface_degraded_durability"`
}

//DefaultConfig returns the tunables used when nothing is configured
func DefaultConfig() Config {
	return Config{
		NormalStreakTarget: 5,
		ReadingsCapacity:   5000,
		AlertsCapacity:     1000,
	}
}

//IngestResult describes what a single ingested reading caused
type IngestResult struct {
	Reading    domain.Reading
	Durability persistence.Durability
	Alerts     []domain.Alert
	Events     []domain.ActuatorEvent
}

//Engine evaluates readings and drives the actuators in auto mode
type Engine struct {
	cfg       Config
	evaluator *thresholds.Evaluator
	registry  *actuators.Registry
	store     Store
	readings  *history.Ring[domain.Reading]
	alerts    *history.Ring[domain.Alert]
	clock     clock.Clock
	listener  notification.Listener
	log       logging.Logger

	//notifyMu serializes actuator notifications per device
	notifyMu map[domain.Device]*sync.Mutex
}

//Option configures optional collaborators of an Engine
type Option func(*Engine)

//WithClock replaces the system clock
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

//WithListener registers a listener for readings, alerts and actuator transitions
func WithListener(l notification.Listener) Option {
	return func(e *Engine) {
		e.listener = l
	}
}

func NewEngine(cfg Config, evaluator *thresholds.Evaluator, registry *actuators.Registry, store Store, log logging.Logger, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.NormalStreakTarget < 1 {
		cfg.NormalStreakTarget = defaults.NormalStreakTarget
	}
	if cfg.ReadingsCapacity < 1 {
		cfg.ReadingsCapacity = defaults.ReadingsCapacity
	}
	if cfg.AlertsCapacity < 1 {
		cfg.AlertsCapacity = defaults.AlertsCapacity
	}

	e := &Engine{
		cfg:       cfg,
		evaluator: evaluator,
		registry:  registry,
		store:     store,
		readings:  history.NewRing[domain.Reading](cfg.ReadingsCapacity),
		alerts:    history.NewRing[domain.Alert](cfg.AlertsCapacity),
		clock:     clock.System(),
		listener:  notification.NewFanout(),
		log:       log,
		notifyMu:  make(map[domain.Device]*sync.Mutex, len(domain.Devices)),
	}

	for _, d := range domain.Devices {
		e.notifyMu[d] = &sync.Mutex{}
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

//pendingChange is a transition that was decided under a device lock and
//still needs to be written and announced
type pendingChange struct {
	snapshot domain.ActuatorSnapshot
	event    domain.ActuatorEvent
}

//Ingest accepts a single reading. Storage problems never fail an ingestion. The
//only errors returned are validation errors and, when configured to surface it,
//persistence.ErrNotDurable together with a complete result.
func (e *Engine) Ingest(r domain.Reading) (IngestResult, error) {
	if err := r.Validate(); err != nil {
		return IngestResult{}, err
	}

	r.Timestamp = clock.ToUTC(e.clock, r.Timestamp)
	e.readings.Add(r)

	stored, durability := e.store.StoreReading(r)
	result := IngestResult{Reading: stored, Durability: durability}

	verdict := e.evaluator.Evaluate(r)

	var alerts []domain.Alert
	var changes []pendingChange

	if verdict.OutOfRange {
		now := e.clock.Now()
		alerts = append(alerts, domain.Alert{
			Level:     domain.LevelWarn,
			Source:    domain.SourceThreshold,
			Message:   fmt.Sprintf("%s out of range: %s", r.Type, formatValue(r.Value)),
			Timestamp: now,
		})
		changes = e.handleOutOfRange(r, verdict, now)
	} else {
		var alert *domain.Alert
		alert, changes = e.handleInRange(r)
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	e.listener.ReadingAccepted(stored, durability)

	for _, a := range alerts {
		result.Alerts = append(result.Alerts, e.raise(a))
	}

	for _, c := range changes {
		result.Events = append(result.Events, e.record(c))
	}

	if durability == persistence.AcceptedNotDurable && e.cfg.SurfaceDegradedDurability {
		return result, persistence.ErrNotDurable
	}

	return result, nil
}

//activationTarget returns the device an out of range reading switches on, if any
func activationTarget(r domain.Reading, v thresholds.Verdict) (domain.Device, bool) {
	switch r.Type {
	case domain.CO2:
		return domain.Fan, true
	case domain.Temperature:
		return domain.Heater, v.BelowMin
	case domain.Humidity:
		return domain.Humidifier, v.BelowMin
	}
	return "", false
}

func (e *Engine) handleOutOfRange(r domain.Reading, verdict thresholds.Verdict, now time.Time) []pendingChange {
	var changes []pendingChange

	target, activate := activationTarget(r, verdict)

	e.registry.UpdateAll(func(entries map[domain.Device]*actuators.Entry) {
		for _, entry := range entries {
			entry.NormalStreak = 0
		}

		if !activate {
			return
		}

		entry := entries[target]
		if entry.Mode != domain.ModeAuto || entry.State != domain.StateOff {
			return
		}

		entry.State = domain.StateOn
		entry.LastChange = &now

		changes = append(changes, newChange(entry, domain.ActionOn, domain.ReasonAutomation, now))
	})

	return changes
}

func (e *Engine) handleInRange(r domain.Reading) (*domain.Alert, []pendingChange) {
	device := r.Type.GoverningDevice()
	if device == "" {
		return nil, nil
	}

	var alert *domain.Alert
	var changes []pendingChange

	e.registry.Update(device, func(entry *actuators.Entry) {
		entry.NormalStreak++

		if entry.Mode != domain.ModeAuto || entry.State != domain.StateOn || entry.NormalStreak < e.cfg.NormalStreakTarget {
			return
		}

		now := e.clock.Now()
		streak := entry.NormalStreak

		entry.State = domain.StateOff
		entry.LastChange = &now
		entry.NormalStreak = 0

		alert = &domain.Alert{
			Level:     domain.LevelInfo,
			Source:    domain.SourceAutomation,
			Message:   fmt.Sprintf("%s auto-off after %d normal readings", device, streak),
			Timestamp: now,
		}

		changes = append(changes, newChange(entry, domain.ActionOff, domain.ReasonAutomation, now))
	})

	return alert, changes
}

//SetActuator pins a device to on or off in manual mode, or hands it back to the
//engine in auto mode, which always starts from off. Streak counters are left alone.
func (e *Engine) SetActuator(device domain.Device, action domain.Action) (domain.ActuatorSnapshot, error) {
	if !device.Valid() {
		return domain.ActuatorSnapshot{}, domain.NewValidationError("device", "must be one of: fan, heater, humidifier")
	}

	if _, err := domain.ParseAction(string(action)); err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	var change pendingChange

	snapshot, err := e.registry.Update(device, func(entry *actuators.Entry) {
		now := e.clock.Now()

		switch action {
		case domain.ActionOn:
			entry.Mode = domain.ModeManual
			entry.State = domain.StateOn
		case domain.ActionOff:
			entry.Mode = domain.ModeManual
			entry.State = domain.StateOff
		case domain.ActionAuto:
			entry.Mode = domain.ModeAuto
			entry.State = domain.StateOff
		}

		entry.LastChange = &now
		change = newChange(entry, action, domain.ReasonManual, now)
	})

	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	e.record(change)

	return snapshot, nil
}

func newChange(entry *actuators.Entry, action domain.Action, reason domain.Reason, now time.Time) pendingChange {
	lc := now

	return pendingChange{
		snapshot: domain.ActuatorSnapshot{
			Device:     entry.Device,
			Mode:       entry.Mode,
			State:      entry.State,
			LastChange: &lc,
		},
		event: domain.ActuatorEvent{
			Device:    entry.Device,
			Action:    action,
			Reason:    reason,
			Mode:      entry.Mode,
			State:     entry.State,
			Timestamp: now,
		},
	}
}

func (e *Engine) raise(a domain.Alert) domain.Alert {
	e.alerts.Add(a)

	if a.Level == domain.LevelWarn {
		e.log.Warnf("%s", a.Message)
	} else {
		e.log.Infof("%s", a.Message)
	}

	stored, _ := e.store.StoreAlert(a)
	e.listener.AlertRaised(stored)

	return stored
}

func (e *Engine) record(c pendingChange) domain.ActuatorEvent {
	e.log.Infof("%s turned %s in %s mode (%s, reason: %s)", c.event.Device, c.event.State, c.event.Mode, c.event.Action, c.event.Reason)

	stored, _ := e.store.StoreActuatorEvent(c.event)
	e.notifyActuatorChanged(c, stored)

	return stored
}

//notifyActuatorChanged hands listeners the live state of the device, so the last
//notification for a device always carries its current state
func (e *Engine) notifyActuatorChanged(c pendingChange, stored domain.ActuatorEvent) {
	mu := e.notifyMu[c.event.Device]
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := e.registry.Snapshot(c.event.Device)
	if err != nil {
		snapshot = c.snapshot
	}

	e.listener.ActuatorChanged(snapshot, stored)
}

//Actuator returns the live state of a single device
func (e *Engine) Actuator(device domain.Device) (domain.ActuatorSnapshot, error) {
	if !device.Valid() {
		return domain.ActuatorSnapshot{}, domain.NewValidationError("device", "must be one of: fan, heater, humidifier")
	}
	return e.registry.Snapshot(device)
}

//Actuators returns the live state of every device
func (e *Engine) Actuators() []domain.ActuatorSnapshot {
	return e.registry.Snapshots()
}

//RecentReadings returns buffered readings, newest first. Empty filters match everything.
func (e *Engine) RecentReadings(sensorID string, sensorType domain.SensorType, limit int) []domain.Reading {
	return e.readings.Recent(limit, func(r domain.Reading) bool {
		return (sensorID == "" || r.SensorID == sensorID) && (sensorType == "" || r.Type == sensorType)
	})
}

//RecentAlerts returns buffered alerts, newest first
func (e *Engine) RecentAlerts(limit int) []domain.Alert {
	return e.alerts.Recent(limit, nil)
}

//formatValue renders a float the way sensor values are written in alert
//messages: shortest representation, always with a decimal part
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".IN") {
		s += ".0"
	}
	return s
}
