package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

//Metrics exposes ingestion and automation activity to prometheus. It is both a
//notification listener and a persistence observer.
type Metrics struct {
	readings        *prometheus.CounterVec
	lastValue       *prometheus.GaugeVec
	alerts          *prometheus.CounterVec
	actuatorState   *prometheus.GaugeVec
	actuatorManual  *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	writeFailures   *prometheus.CounterVec
	notDurableTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenhouse_readings_total",
				Help: "Number of accepted sensor readings.",
			},
			[]string{"type", "durability"},
		),
		lastValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greenhouse_reading_value",
				Help: "Most recent value reported for a sensor type.",
			},
			[]string{"type"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenhouse_alerts_total",
				Help: "Number of raised alerts.",
			},
			[]string{"level", "source"},
		),
		actuatorState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greenhouse_actuator_state",
				Help: "Current state of actuator, 1 for on and 0 for off.",
			},
			[]string{"device"},
		),
		actuatorManual: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greenhouse_actuator_manual",
				Help: "1 when the actuator is pinned in manual mode.",
			},
			[]string{"device"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenhouse_actuator_transitions_total",
				Help: "Number of actuator transitions.",
			},
			[]string{"device", "action", "reason"},
		),
		writeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenhouse_storage_write_failures_total",
				Help: "Number of failed datastore writes, including retried ones.",
			},
			[]string{"kind"},
		),
		notDurableTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "greenhouse_readings_not_durable_total",
				Help: "Number of readings that were accepted but never stored.",
			},
		),
	}

	reg.MustRegister(m.readings)
	reg.MustRegister(m.lastValue)
	reg.MustRegister(m.alerts)
	reg.MustRegister(m.actuatorState)
	reg.MustRegister(m.actuatorManual)
	reg.MustRegister(m.transitions)
	reg.MustRegister(m.writeFailures)
	reg.MustRegister(m.notDurableTotal)

	for _, d := range domain.Devices {
		m.actuatorState.WithLabelValues(string(d)).Set(0)
		m.actuatorManual.WithLabelValues(string(d)).Set(0)
	}

	return m
}

func (m *Metrics) ReadingAccepted(r domain.Reading, durability persistence.Durability) {
	m.readings.WithLabelValues(string(r.Type), durability.String()).Inc()
	m.lastValue.WithLabelValues(string(r.Type)).Set(r.Value)
}

func (m *Metrics) AlertRaised(a domain.Alert) {
	m.alerts.WithLabelValues(string(a.Level), string(a.Source)).Inc()
}

func (m *Metrics) ActuatorChanged(s domain.ActuatorSnapshot, e domain.ActuatorEvent) {
	m.actuatorState.WithLabelValues(string(s.Device)).Set(boolToFloat(s.State == domain.StateOn))
	m.actuatorManual.WithLabelValues(string(s.Device)).Set(boolToFloat(s.Mode == domain.ModeManual))
	m.transitions.WithLabelValues(string(e.Device), string(e.Action), string(e.Reason)).Inc()
}

func (m *Metrics) WriteFailed(kind persistence.Kind) {
	m.writeFailures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ReadingDowngraded() {
	m.notDurableTotal.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
