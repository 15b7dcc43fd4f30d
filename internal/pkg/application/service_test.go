package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/actuators"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/automation"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/thresholds"
)

func TestThatDecodeReadingTreatsNaiveTimestampsAsUTC(t *testing.T) {
	r, err := DecodeReading([]byte(`{"sensor_id":"s1","type":"co2","value":800,"ts":"2024-05-01T10:30:00"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}

	expected := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	if !r.Timestamp.Equal(expected) || r.Timestamp.Location() != time.UTC {
		t.Errorf("Expected %s, got %s", expected, r.Timestamp)
	}
}

func TestThatDecodeReadingLeavesMissingTimestampsEmpty(t *testing.T) {
	r, err := DecodeReading([]byte(`{"sensor_id":"s1","type":"temp","value":0}`))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}

	if !r.Timestamp.IsZero() || r.Value != 0 {
		t.Errorf("Unexpected reading %+v", r)
	}
}

func TestThatDecodeReadingReturnsValidationErrors(t *testing.T) {
	_, err := DecodeReading([]byte(`{"sensor_id":"s1","type":"light","value":1}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	limits := map[int]int{-1: DefaultLimit, 0: DefaultLimit, 1: 1, 250: 250, 1000: 1000, 1001: MaxLimit}

	for limit, expected := range limits {
		if clamped := ClampLimit(limit); clamped != expected {
			t.Errorf("Expected %d to be clamped to %d, got %d", limit, expected, clamped)
		}
	}
}

func TestThatStoredReadingsListTheSameInstantEveryTime(t *testing.T) {
	log := logging.NewLogger()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(dsn), log)
	if err != nil {
		t.Fatalf("Failed to open database: %s", err.Error())
	}

	gateway := persistence.NewGateway(db, persistence.Config{ReadingAttempts: 3, RetryBackoff: time.Millisecond}, log)
	defer gateway.Close()

	engine := automation.NewEngine(
		automation.DefaultConfig(), thresholds.NewEvaluator(thresholds.DefaultTable()), actuators.NewRegistry(), gateway, log,
	)
	svc := NewService(engine, db, log)

	ts := time.Date(2024, 5, 1, 14, 30, 0, 0, time.FixedZone("CEST", 7200))
	if _, err := svc.Ingest(domain.Reading{SensorID: "s1", Type: domain.Temperature, Value: 21.5, Timestamp: ts}); err != nil {
		t.Fatalf("Ingest failed: %s", err.Error())
	}

	first, err := svc.ListReadings(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("ListReadings failed: %s", err.Error())
	}

	second, err := svc.ListReadings(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("ListReadings failed: %s", err.Error())
	}

	if len(first) != 1 || !reflect.DeepEqual(first, second) {
		t.Fatalf("Expected the same single reading twice, got %+v and %+v", first, second)
	}

	if !first[0].Timestamp.Equal(ts) || first[0].Timestamp.Location() != time.UTC {
		t.Errorf("Expected %s in UTC, got %s", ts.UTC(), first[0].Timestamp)
	}
}
