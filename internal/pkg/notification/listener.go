package notification

import (
	"sync"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

//Listener is told about everything the automation engine accepts or decides.
//Calls are made after all actuator locks have been released.
type Listener interface {
	ReadingAccepted(r domain.Reading, durability persistence.Durability)
	AlertRaised(a domain.Alert)
	ActuatorChanged(snapshot domain.ActuatorSnapshot, event domain.ActuatorEvent)
}

//Fanout forwards every notification to all registered listeners in registration order
type Fanout struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewFanout(listeners ...Listener) *Fanout {
	return &Fanout{listeners: listeners}
}

//Add registers another listener
func (f *Fanout) Add(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *Fanout) snapshot() []Listener {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Listener(nil), f.listeners...)
}

func (f *Fanout) ReadingAccepted(r domain.Reading, durability persistence.Durability) {
	for _, l := range f.snapshot() {
		l.ReadingAccepted(r, durability)
	}
}

func (f *Fanout) AlertRaised(a domain.Alert) {
	for _, l := range f.snapshot() {
		l.AlertRaised(a)
	}
}

func (f *Fanout) ActuatorChanged(snapshot domain.ActuatorSnapshot, event domain.ActuatorEvent) {
	for _, l := range f.snapshot() {
		l.ActuatorChanged(snapshot, event)
	}
}
