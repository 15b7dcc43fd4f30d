package actuators

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
)

func TestThatNewRegistryStartsInAutoAndOff(t *testing.T) {
	r := NewRegistry()

	for _, s := range r.Snapshots() {
		if s.Mode != domain.ModeAuto || s.State != domain.StateOff || s.LastChange != nil {
			t.Errorf("Unexpected initial state for %s: %+v", s.Device, s)
		}
		if r.NormalStreak(s.Device) != 0 {
			t.Errorf("Streak for %s should start at 0", s.Device)
		}
	}
}

func TestThatSnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	now := time.Now().UTC()

	r.Update(domain.Fan, func(e *Entry) {
		e.LastChange = &now
	})

	s, _ := r.Snapshot(domain.Fan)
	*s.LastChange = s.LastChange.Add(time.Hour)

	again, _ := r.Snapshot(domain.Fan)
	if !again.LastChange.Equal(now) {
		t.Error("Mutating a snapshot must not change the registry")
	}
}

func TestThatUnknownDevicesAreRejected(t *testing.T) {
	r := NewRegistry()

	_, err := r.Snapshot("sprinkler")
	var unknown ErrUnknownDevice
	if !errors.As(err, &unknown) {
		t.Errorf("Expected ErrUnknownDevice, got %v", err)
	}
}

func TestThatUpdateAllSeesEveryDevice(t *testing.T) {
	r := NewRegistry()
	for _, d := range domain.Devices {
		r.Update(d, func(e *Entry) { e.NormalStreak = 3 })
	}

	r.UpdateAll(func(entries map[domain.Device]*Entry) {
		if len(entries) != len(domain.Devices) {
			t.Errorf("Expected %d entries, got %d", len(domain.Devices), len(entries))
		}
		for _, e := range entries {
			e.NormalStreak = 0
		}
	})

	for _, d := range domain.Devices {
		if r.NormalStreak(d) != 0 {
			t.Errorf("Streak of %s was not reset", d)
		}
	}
}

func TestConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Update(domain.Heater, func(e *Entry) { e.NormalStreak++ })
		}()
		go func() {
			defer wg.Done()
			r.UpdateAll(func(entries map[domain.Device]*Entry) {
				entries[domain.Fan].NormalStreak++
			})
		}()
	}
	wg.Wait()

	if r.NormalStreak(domain.Heater) != 50 || r.NormalStreak(domain.Fan) != 50 {
		t.Errorf("Lost updates: heater=%d fan=%d", r.NormalStreak(domain.Heater), r.NormalStreak(domain.Fan))
	}
}
