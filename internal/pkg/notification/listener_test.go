package notification

import (
	"testing"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

type listenerMock struct {
	readings int
	alerts   int
	changes  int
	order    *[]string
	name     string
}

func (l *listenerMock) ReadingAccepted(domain.Reading, persistence.Durability) {
	l.readings++
	*l.order = append(*l.order, l.name)
}

func (l *listenerMock) AlertRaised(domain.Alert) {
	l.alerts++
}

func (l *listenerMock) ActuatorChanged(domain.ActuatorSnapshot, domain.ActuatorEvent) {
	l.changes++
}

func TestThatFanoutForwardsToEveryListenerInOrder(t *testing.T) {
	order := []string{}
	first := &listenerMock{name: "first", order: &order}
	second := &listenerMock{name: "second", order: &order}

	f := NewFanout(first)
	f.Add(second)

	f.ReadingAccepted(domain.Reading{}, persistence.Durable)
	f.AlertRaised(domain.Alert{})
	f.ActuatorChanged(domain.ActuatorSnapshot{}, domain.ActuatorEvent{})

	for _, l := range []*listenerMock{first, second} {
		if l.readings != 1 || l.alerts != 1 || l.changes != 1 {
			t.Errorf("Listener %s got %d/%d/%d notifications", l.name, l.readings, l.alerts, l.changes)
		}
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Unexpected notification order %v", order)
	}
}

func TestThatEmptyFanoutIsSafe(t *testing.T) {
	var f Fanout
	f.AlertRaised(domain.Alert{})
}
