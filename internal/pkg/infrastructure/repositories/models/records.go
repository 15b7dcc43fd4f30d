package models

import (
	"time"
)

//Reading is the database model to store sensor readings in our database
type Reading struct {
	ID        uint   `gorm:"primaryKey"`
	SensorID  string `gorm:"index:readings_from_sensor"`
	Type      string `gorm:"size:16"`
	Value     float64
	Timestamp time.Time `gorm:"column:ts;index:readings_by_time"`
}

func (Reading) TableName() string {
	return "readings"
}

//Alert is the database model for alerts raised during ingestion
type Alert struct {
	ID        uint   `gorm:"primaryKey"`
	Level     string `gorm:"size:8"`
	Source    string `gorm:"size:16"`
	Message   string
	Timestamp time.Time `gorm:"column:ts;index:alerts_by_time"`
}

func (Alert) TableName() string {
	return "alerts"
}

//ActuatorEvent is the append-only audit trail of actuator transitions
type ActuatorEvent struct {
	ID        uint   `gorm:"primaryKey"`
	Device    string `gorm:"size:16;index:events_from_device"`
	Action    string `gorm:"size:8"`
	Reason    string `gorm:"size:16"`
	Mode      string `gorm:"size:8"`
	State     string `gorm:"size:8"`
	Timestamp time.Time `gorm:"column:ts;index:events_by_time"`
}

func (ActuatorEvent) TableName() string {
	return "actuator_events"
}
