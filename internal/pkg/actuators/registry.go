package actuators

import (
	"fmt"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
)

//Entry is the live, mutable state of one actuator. It is only handed out
//while the owning device lock is held.
type Entry struct {
	Device       domain.Device
	Mode         domain.Mode
	State        domain.State
	LastChange   *time.Time
	NormalStreak int
}

func (e *Entry) snapshot() domain.ActuatorSnapshot {
	s := domain.ActuatorSnapshot{
		Device: e.Device,
		Mode:   e.Mode,
		State:  e.State,
	}

	if e.LastChange != nil {
		lc := *e.LastChange
		s.LastChange = &lc
	}

	return s
}

type guardedEntry struct {
	mu    sync.Mutex
	entry Entry
}

//Registry owns exactly one Entry per device, each behind its own lock
type Registry struct {
	entries map[domain.Device]*guardedEntry
}

//NewRegistry creates a registry where every device is in auto mode and switched off
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[domain.Device]*guardedEntry, len(domain.Devices))}

	for _, d := range domain.Devices {
		r.entries[d] = &guardedEntry{
			entry: Entry{
				Device: d,
				Mode:   domain.ModeAuto,
				State:  domain.StateOff,
			},
		}
	}

	return r
}

//ErrUnknownDevice is returned for devices the registry does not hold
type ErrUnknownDevice struct {
	Device domain.Device
}

func (e ErrUnknownDevice) Error() string {
	return fmt.Sprintf("unknown device %q", string(e.Device))
}

func (r *Registry) lookup(d domain.Device) (*guardedEntry, error) {
	g, ok := r.entries[d]
	if !ok {
		return nil, ErrUnknownDevice{Device: d}
	}
	return g, nil
}

//Snapshot returns a copy of the current state of device d
func (r *Registry) Snapshot(d domain.Device) (domain.ActuatorSnapshot, error) {
	g, err := r.lookup(d)
	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.entry.snapshot(), nil
}

//Snapshots returns a copy of every device state in domain.Devices order
func (r *Registry) Snapshots() []domain.ActuatorSnapshot {
	result := make([]domain.ActuatorSnapshot, 0, len(domain.Devices))

	for _, d := range domain.Devices {
		s, _ := r.Snapshot(d)
		result = append(result, s)
	}

	return result
}

//NormalStreak returns the current count of consecutive normal readings for d
func (r *Registry) NormalStreak(d domain.Device) int {
	g, err := r.lookup(d)
	if err != nil {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.entry.NormalStreak
}

//Update runs fn with exclusive access to the entry of device d. The returned
//snapshot reflects the entry after fn returned.
func (r *Registry) Update(d domain.Device, fn func(e *Entry)) (domain.ActuatorSnapshot, error) {
	g, err := r.lookup(d)
	if err != nil {
		return domain.ActuatorSnapshot{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fn(&g.entry)

	return g.entry.snapshot(), nil
}

//UpdateAll runs fn while holding the locks of every device. Locks are taken in
//domain.Devices order so that concurrent callers can never deadlock.
func (r *Registry) UpdateAll(fn func(entries map[domain.Device]*Entry)) {
	locked := make(map[domain.Device]*Entry, len(domain.Devices))

	for _, d := range domain.Devices {
		g := r.entries[d]
		g.mu.Lock()
		defer g.mu.Unlock()
		locked[d] = &g.entry
	}

	fn(locked)
}
