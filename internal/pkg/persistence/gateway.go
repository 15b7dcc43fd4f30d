package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
)

//Durability tells whether an accepted reading also made it into durable storage
type Durability int

const (
	//Durable means the reading was written to the datastore
	Durable Durability = iota
	//AcceptedNotDurable means every write attempt failed and the reading only lives in memory
	AcceptedNotDurable
)

func (d Durability) String() string {
	if d == Durable {
		return "durable"
	}
	return "accepted_not_durable"
}

//ErrNotDurable is reported to callers that asked to see degraded durability
var ErrNotDurable = errors.New("reading accepted but not durably stored")

//Kind names the type of record a write was for
type Kind string

const (
	KindReading       Kind = "reading"
	KindAlert         Kind = "alert"
	KindActuatorEvent Kind = "actuator_event"
)

//Observer is told about failed writes, typically to feed metrics
type Observer interface {
	WriteFailed(kind Kind)
	ReadingDowngraded()
}

type nopObserver struct{}

func (nopObserver) WriteFailed(Kind)   {}
func (nopObserver) ReadingDowngraded() {}

//Config controls the retry policy for readings and the per write timeout
type Config struct {
	ReadingAttempts int           `mapstructure:"reading_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

//DefaultConfig gives three attempts with 100ms, then 200ms, in between
func DefaultConfig() Config {
	return Config{
		ReadingAttempts: 3,
		RetryBackoff:    100 * time.Millisecond,
		WriteTimeout:    5 * time.Second,
	}
}

//Gateway writes readings, alerts and actuator events to a Datastore. It never
//returns storage errors to its callers, it degrades instead.
type Gateway struct {
	db       database.Datastore
	cfg      Config
	log      logging.Logger
	observer Observer

	lifetime context.Context
	cancel   context.CancelFunc
}

//Option configures optional parts of a Gateway
type Option func(*Gateway)

//WithObserver registers an Observer for failed writes
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		g.observer = o
	}
}

//NewGateway creates a Gateway on top of db. Writes are bound to the lifetime of
//the gateway rather than to the request that caused them, so a caller going away
//does not abort a write that has already been accepted.
func NewGateway(db database.Datastore, cfg Config, log logging.Logger, opts ...Option) *Gateway {
	if cfg.ReadingAttempts < 1 {
		cfg.ReadingAttempts = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		db:       db,
		cfg:      cfg,
		log:      log,
		observer: nopObserver{},
		lifetime: ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

//Close aborts pending retry waits. Writes that are already in flight are given
//the rest of their write timeout.
func (g *Gateway) Close() {
	g.cancel()
}

//StoreReading tries to write r up to ReadingAttempts times, waiting
//RetryBackoff multiplied by the attempt number between attempts
func (g *Gateway) StoreReading(r domain.Reading) (domain.Reading, Durability) {
	r.Timestamp = r.Timestamp.UTC()

	for attempt := 1; attempt <= g.cfg.ReadingAttempts; attempt++ {
		stored, err := g.writeReading(r)
		if err == nil {
			return *stored, Durable
		}

		g.observer.WriteFailed(KindReading)
		g.log.Warnf("failed to store reading from %s (attempt %d/%d): %s", r.SensorID, attempt, g.cfg.ReadingAttempts, err.Error())

		if attempt < g.cfg.ReadingAttempts {
			if !g.wait(time.Duration(attempt) * g.cfg.RetryBackoff) {
				g.log.Warnf("stopped retrying reading from %s because the gateway is closing", r.SensorID)
				break
			}
		}
	}

	g.observer.ReadingDowngraded()
	g.log.Errorf("reading from %s (%s=%g) was accepted but not durably stored", r.SensorID, r.Type, r.Value)

	return r, AcceptedNotDurable
}

func (g *Gateway) writeReading(r domain.Reading) (*domain.Reading, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteTimeout)
	defer cancel()

	return g.db.CreateReading(ctx, r)
}

//wait sleeps for d unless the gateway is closed first
func (g *Gateway) wait(d time.Duration) bool {
	if d <= 0 {
		return g.lifetime.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-g.lifetime.Done():
		return false
	}
}

//StoreAlert makes a single best effort attempt at writing a
func (g *Gateway) StoreAlert(a domain.Alert) (domain.Alert, bool) {
	a.Timestamp = a.Timestamp.UTC()

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteTimeout)
	defer cancel()

	stored, err := g.db.CreateAlert(ctx, a)
	if err != nil {
		g.observer.WriteFailed(KindAlert)
		g.log.Errorf("failed to store alert %q: %s", a.Message, err.Error())
		return a, false
	}

	return *stored, true
}

//StoreActuatorEvent makes a single best effort attempt at writing e
func (g *Gateway) StoreActuatorEvent(e domain.ActuatorEvent) (domain.ActuatorEvent, bool) {
	e.Timestamp = e.Timestamp.UTC()

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteTimeout)
	defer cancel()

	stored, err := g.db.CreateActuatorEvent(ctx, e)
	if err != nil {
		g.observer.WriteFailed(KindActuatorEvent)
		g.log.Errorf("failed to store %s event for %s: %s", e.Action, e.Device, err.Error())
		return e, false
	}

	return *stored, true
}
