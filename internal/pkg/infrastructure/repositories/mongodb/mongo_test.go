package mongodb

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRepositoryForTest(mt *mtest.T) *MongoRepository {
	return &MongoRepository{
		client: mt.Client,
		db:     mt.DB,
		log:    logging.NewLogger(),
	}
}

func TestCreateReading(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns the allocated id", func(mt *mtest.T) {
		repo := newRepositoryForTest(mt)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: readingsCollection}, {Key: "seq", Value: 7}}}),
			mtest.CreateSuccessResponse(),
		)

		r, err := repo.CreateReading(context.Background(), domain.Reading{SensorID: "s1", Type: domain.CO2, Value: 800, Timestamp: epoch})
		if err != nil {
			mt.Fatalf("CreateReading failed: %s", err.Error())
		}

		if r.ID != 7 {
			mt.Errorf("Expected id 7, got %d", r.ID)
		}
	})

	mt.Run("reports insert failures", func(mt *mtest.T) {
		repo := newRepositoryForTest(mt)

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: readingsCollection}, {Key: "seq", Value: 8}}}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
		)

		if _, err := repo.CreateReading(context.Background(), domain.Reading{SensorID: "s1", Type: domain.CO2, Value: 800, Timestamp: epoch}); err == nil {
			mt.Error("Expected an error when the insert fails")
		}
	})
}

func TestGetReadings(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes documents", func(mt *mtest.T) {
		repo := newRepositoryForTest(mt)
		ns := mt.DB.Name() + "." + readingsCollection

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "_id", Value: 2}, {Key: "sensor_id", Value: "s1"}, {Key: "type", Value: "temp"}, {Key: "value", Value: 21.5}, {Key: "ts", Value: epoch.Add(time.Minute)}},
				bson.D{{Key: "_id", Value: 1}, {Key: "sensor_id", Value: "s1"}, {Key: "type", Value: "temp"}, {Key: "value", Value: 20.5}, {Key: "ts", Value: epoch}},
			),
		)

		readings, err := repo.GetReadings(context.Background(), database.ReadingQuery{SensorID: "s1", Limit: 10})
		if err != nil {
			mt.Fatalf("GetReadings failed: %s", err.Error())
		}

		if len(readings) != 2 || readings[0].ID != 2 || readings[0].Type != domain.Temperature {
			mt.Errorf("Unexpected readings %+v", readings)
		}

		if !readings[1].Timestamp.Equal(epoch) {
			mt.Errorf("Unexpected timestamp %s", readings[1].Timestamp)
		}
	})
}

func TestGetActuatorEvents(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes events", func(mt *mtest.T) {
		repo := newRepositoryForTest(mt)
		ns := mt.DB.Name() + "." + eventsCollection

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "_id", Value: 1}, {Key: "device", Value: "fan"}, {Key: "action", Value: "on"}, {Key: "reason", Value: "automation"}, {Key: "mode", Value: "auto"}, {Key: "state", Value: "on"}, {Key: "ts", Value: epoch}},
			),
		)

		events, err := repo.GetActuatorEvents(context.Background(), database.EventQuery{Device: domain.Fan})
		if err != nil {
			mt.Fatalf("GetActuatorEvents failed: %s", err.Error())
		}

		if len(events) != 1 || events[0].Reason != domain.ReasonAutomation || events[0].State != domain.StateOn {
			mt.Errorf("Unexpected events %+v", events)
		}
	})
}

func TestNewestFirstOnlyLimitsPositiveValues(t *testing.T) {
	if opts := newestFirst(0); opts.Limit != nil {
		t.Error("A zero limit should not be applied")
	}

	if opts := newestFirst(5); opts.Limit == nil || *opts.Limit != 5 {
		t.Error("Expected a limit of 5")
	}
}
