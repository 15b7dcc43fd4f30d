package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

//TransportLayout is used for every timestamp that leaves the service
const TransportLayout = "2006-01-02T15:04:05.000Z"

//Clock is injected wherever "now" is needed so that tests can control time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

//System returns a Clock backed by the wall clock, always in UTC
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

//ToUTC converts t to UTC. A zero time is replaced by the current time of c.
func ToUTC(c Clock, t time.Time) time.Time {
	if t.IsZero() {
		return c.Now().UTC()
	}
	return t.UTC()
}

//Format renders t as an ISO-8601 UTC timestamp with a Z suffix
func Format(t time.Time) string {
	return t.UTC().Format(TransportLayout)
}

//FormatPtr is Format for nullable timestamps
func FormatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}

	s := Format(*t)
	return &s
}

// zone-aware layouts first, naive layouts are interpreted as UTC
var zonedLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00"}
var naiveLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02T15:04", "2006-01-02"}

//ErrUnparseableTimestamp is returned by Parse when no known layout matches
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

//Parse reads an ISO-8601 timestamp. Timestamps without zone information are assumed to be UTC.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, value)
}

//FromStorage normalizes a timestamp read back from a datastore. Drivers return
//the stored instant in whatever location they decode into, often time.Local.
func FromStorage(t time.Time) time.Time {
	return t.UTC()
}

//Fixed is a Clock that always returns the same instant
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time {
	return f.T.UTC()
}

//Advance moves a Fixed clock forward by d
func (f *Fixed) Advance(d time.Duration) {
	f.T = f.T.Add(d)
}
