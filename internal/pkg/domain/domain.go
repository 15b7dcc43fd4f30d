package domain

import (
	"time"

	"golang.org/x/exp/slices"
)

//SensorType is the kind of quantity a sensor measures
type SensorType string

const (
	Temperature SensorType = "temp"
	Humidity    SensorType = "humidity"
	CO2         SensorType = "co2"
)

//SensorTypes lists every supported sensor type
var SensorTypes = []SensorType{Temperature, Humidity, CO2}

//Device is one of the controllable actuators
type Device string

const (
	Fan        Device = "fan"
	Heater     Device = "heater"
	Humidifier Device = "humidifier"
)

//Devices lists every actuator in a fixed order. Code that needs several device
//locks at once must take them in this order.
var Devices = []Device{Fan, Heater, Humidifier}

//Mode decides who is in control of an actuator
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

//State is the physical state of an actuator
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

//Action is what an ActuatorEvent did, or what a manual override asks for
type Action string

const (
	ActionOn   Action = "on"
	ActionOff  Action = "off"
	ActionAuto Action = "auto"
)

//Reason tells whether a transition was requested by a user or by the automation engine
type Reason string

const (
	ReasonManual     Reason = "manual"
	ReasonAutomation Reason = "automation"
)

type AlertLevel string

const (
	LevelWarn AlertLevel = "warn"
	LevelInfo AlertLevel = "info"
)

type AlertSource string

const (
	SourceThreshold  AlertSource = "threshold"
	SourceAutomation AlertSource = "automation"
)

//GoverningDevice returns the actuator whose normal-reading streak is driven by readings of t
func (t SensorType) GoverningDevice() Device {
	switch t {
	case CO2:
		return Fan
	case Temperature:
		return Heater
	case Humidity:
		return Humidifier
	}
	return ""
}

//Valid reports whether t is a supported sensor type
func (t SensorType) Valid() bool {
	return slices.Contains(SensorTypes, t)
}

//Valid reports whether d is a known actuator
func (d Device) Valid() bool {
	return slices.Contains(Devices, d)
}

//Reading is a single sensor measurement. Timestamp is always UTC.
type Reading struct {
	ID        uint       `json:"id,omitempty"`
	SensorID  string     `json:"sensor_id"`
	Type      SensorType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"ts"`
}

//Alert is raised as a side effect of ingestion
type Alert struct {
	ID        uint        `json:"id,omitempty"`
	Level     AlertLevel  `json:"level"`
	Source    AlertSource `json:"source"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"ts"`
}

//ActuatorEvent is the append-only audit record of a single actuator transition
type ActuatorEvent struct {
	ID        uint      `json:"id,omitempty"`
	Device    Device    `json:"device"`
	Action    Action    `json:"action"`
	Reason    Reason    `json:"reason"`
	Mode      Mode      `json:"mode"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"ts"`
}

//ActuatorSnapshot is a point in time copy of the live state of an actuator
type ActuatorSnapshot struct {
	Device     Device     `json:"-"`
	Mode       Mode       `json:"mode"`
	State      State      `json:"state"`
	LastChange *time.Time `json:"last_change"`
}
