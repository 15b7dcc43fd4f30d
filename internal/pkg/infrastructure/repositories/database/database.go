package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//Datastore is an interface that is used to inject the database into different handlers to improve testability
type Datastore interface {
	CreateReading(ctx context.Context, r domain.Reading) (*domain.Reading, error)
	CreateAlert(ctx context.Context, a domain.Alert) (*domain.Alert, error)
	CreateActuatorEvent(ctx context.Context, e domain.ActuatorEvent) (*domain.ActuatorEvent, error)

	GetReadings(ctx context.Context, q ReadingQuery) ([]domain.Reading, error)
	GetAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
	GetActuatorEvents(ctx context.Context, q EventQuery) ([]domain.ActuatorEvent, error)

	Ping(ctx context.Context) error
}

//ReadingQuery narrows down GetReadings. Empty fields match everything.
type ReadingQuery struct {
	SensorID string
	Type     domain.SensorType
	Limit    int
}

//EventQuery narrows down GetActuatorEvents. An empty Device matches every device.
type EventQuery struct {
	Device domain.Device
	Limit  int
}

//PostgresConfig holds the connection parameters for NewPostgreSQLConnector
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type myDB struct {
	impl *gorm.DB
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

const connectAttempts int = 10

//NewPostgreSQLConnector opens a connection to a postgresql database
func NewPostgreSQLConnector(cfg PostgresConfig, log logging.Logger) ConnectorFunc {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", cfg.Host, cfg.User, cfg.DBName, sslMode, cfg.Password)

	return func() (*gorm.DB, error) {
		var err error

		for attempt := 1; attempt <= connectAttempts; attempt++ {
			log.Infof("Connecting to database host %s ...", cfg.Host)

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Warn),
			})
			if err == nil {
				return db, nil
			}

			log.Errorf("Failed to connect to database: %s", err.Error())
			time.Sleep(3 * time.Second)
		}

		return nil, fmt.Errorf("giving up on database after %d attempts: %w", connectAttempts, err)
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database. An empty
//dsn gives a shared in-memory database.
func NewSQLiteConnector(dsn string) ConnectorFunc {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA journal_mode = WAL")
		}

		return db, err
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	db := &myDB{
		impl: impl,
	}

	for _, model := range []interface{}{&models.Reading{}, &models.Alert{}, &models.ActuatorEvent{}} {
		if err = db.impl.AutoMigrate(model); err != nil {
			log.Errorf("Failed to migrate %T: %s", model, err.Error())
			return nil, err
		}
	}

	return db, nil
}

func (db *myDB) CreateReading(ctx context.Context, src domain.Reading) (*domain.Reading, error) {
	record := &models.Reading{
		SensorID:  src.SensorID,
		Type:      string(src.Type),
		Value:     src.Value,
		Timestamp: src.Timestamp.UTC(),
	}

	result := db.impl.WithContext(ctx).Create(record)
	if result.Error != nil {
		return nil, result.Error
	}

	r := readingFromRecord(record)
	return &r, nil
}

func (db *myDB) CreateAlert(ctx context.Context, src domain.Alert) (*domain.Alert, error) {
	record := &models.Alert{
		Level:     string(src.Level),
		Source:    string(src.Source),
		Message:   src.Message,
		Timestamp: src.Timestamp.UTC(),
	}

	result := db.impl.WithContext(ctx).Create(record)
	if result.Error != nil {
		return nil, result.Error
	}

	a := alertFromRecord(record)
	return &a, nil
}

func (db *myDB) CreateActuatorEvent(ctx context.Context, src domain.ActuatorEvent) (*domain.ActuatorEvent, error) {
	record := &models.ActuatorEvent{
		Device:    string(src.Device),
		Action:    string(src.Action),
		Reason:    string(src.Reason),
		Mode:      string(src.Mode),
		State:     string(src.State),
		Timestamp: src.Timestamp.UTC(),
	}

	result := db.impl.WithContext(ctx).Create(record)
	if result.Error != nil {
		return nil, result.Error
	}

	e := eventFromRecord(record)
	return &e, nil
}

func (db *myDB) GetReadings(ctx context.Context, q ReadingQuery) ([]domain.Reading, error) {
	records := []models.Reading{}

	tx := db.impl.WithContext(ctx).Order("ts desc, id desc")
	if q.SensorID != "" {
		tx = tx.Where("sensor_id = ?", q.SensorID)
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", string(q.Type))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if result := tx.Find(&records); result.Error != nil {
		return nil, result.Error
	}

	readings := make([]domain.Reading, 0, len(records))
	for i := range records {
		readings = append(readings, readingFromRecord(&records[i]))
	}

	return readings, nil
}

func (db *myDB) GetAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	records := []models.Alert{}

	tx := db.impl.WithContext(ctx).Order("ts desc, id desc")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	if result := tx.Find(&records); result.Error != nil {
		return nil, result.Error
	}

	alerts := make([]domain.Alert, 0, len(records))
	for i := range records {
		alerts = append(alerts, alertFromRecord(&records[i]))
	}

	return alerts, nil
}

func (db *myDB) GetActuatorEvents(ctx context.Context, q EventQuery) ([]domain.ActuatorEvent, error) {
	records := []models.ActuatorEvent{}

	tx := db.impl.WithContext(ctx).Order("ts desc, id desc")
	if q.Device != "" {
		tx = tx.Where("device = ?", string(q.Device))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if result := tx.Find(&records); result.Error != nil {
		return nil, result.Error
	}

	events := make([]domain.ActuatorEvent, 0, len(records))
	for i := range records {
		events = append(events, eventFromRecord(&records[i]))
	}

	return events, nil
}

func (db *myDB) Ping(ctx context.Context) error {
	sqlDB, err := db.impl.DB()
	if err != nil {
		return err
	}

	if sqlDB == nil {
		return errors.New("database connection is not initialized")
	}

	return sqlDB.PingContext(ctx)
}

func readingFromRecord(r *models.Reading) domain.Reading {
	return domain.Reading{
		ID:        r.ID,
		SensorID:  r.SensorID,
		Type:      domain.SensorType(r.Type),
		Value:     r.Value,
		Timestamp: clock.FromStorage(r.Timestamp),
	}
}

func alertFromRecord(a *models.Alert) domain.Alert {
	return domain.Alert{
		ID:        a.ID,
		Level:     domain.AlertLevel(a.Level),
		Source:    domain.AlertSource(a.Source),
		Message:   a.Message,
		Timestamp: clock.FromStorage(a.Timestamp),
	}
}

func eventFromRecord(e *models.ActuatorEvent) domain.ActuatorEvent {
	return domain.ActuatorEvent{
		ID:        e.ID,
		Device:    domain.Device(e.Device),
		Action:    domain.Action(e.Action),
		Reason:    domain.Reason(e.Reason),
		Mode:      domain.Mode(e.Mode),
		State:     domain.State(e.State),
		Timestamp: clock.FromStorage(e.Timestamp),
	}
}
