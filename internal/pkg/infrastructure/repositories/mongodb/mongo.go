package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/clock"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
)

const (
	readingsCollection = "readings"
	alertsCollection   = "alerts"
	eventsCollection   = "actuator_events"
	countersCollection = "counters"
)

type readingDocument struct {
	ID        uint      `bson:"_id"`
	SensorID  string    `bson:"sensor_id"`
	Type      string    `bson:"type"`
	Value     float64   `bson:"value"`
	Timestamp time.Time `bson:"ts"`
}

type alertDocument struct {
	ID        uint      `bson:"_id"`
	Level     string    `bson:"level"`
	Source    string    `bson:"source"`
	Message   string    `bson:"message"`
	Timestamp time.Time `bson:"ts"`
}

type eventDocument struct {
	ID        uint      `bson:"_id"`
	Device    string    `bson:"device"`
	Action    string    `bson:"action"`
	Reason    string    `bson:"reason"`
	Mode      string    `bson:"mode"`
	State     string    `bson:"state"`
	Timestamp time.Time `bson:"ts"`
}

//MongoRepository stores readings, alerts and actuator events in three MongoDB collections
type MongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
	log    logging.Logger
}

//NewMongoRepository connects to MongoDB and makes sure the query indexes exist
func NewMongoRepository(ctx context.Context, connectionString, databaseName string, log logging.Logger) (*MongoRepository, error) {
	clientOptions := options.Client().ApplyURI(connectionString)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(connectCtx, readpref.Primary())
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Infof("Connected to MongoDB database %s", databaseName)

	r := &MongoRepository{
		client: client,
		db:     client.Database(databaseName),
		log:    log,
	}

	if err = r.ensureIndexes(connectCtx); err != nil {
		return nil, err
	}

	return r, nil
}

var _ database.Datastore = &MongoRepository{}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		readingsCollection: {
			{Keys: bson.D{{Key: "ts", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "sensor_id", Value: 1}, {Key: "ts", Value: -1}}},
		},
		alertsCollection: {
			{Keys: bson.D{{Key: "ts", Value: -1}, {Key: "_id", Value: -1}}},
		},
		eventsCollection: {
			{Keys: bson.D{{Key: "device", Value: 1}, {Key: "ts", Value: -1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := r.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}

	return nil
}

//nextID hands out increasing integer identities per collection so that
//documents expose the same kind of id as the SQL backends
func (r *MongoRepository) nextID(ctx context.Context, collection string) (uint, error) {
	counter := struct {
		Seq uint `bson:"seq"`
	}{}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.db.Collection(countersCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)

	if err != nil {
		return 0, fmt.Errorf("failed to allocate id in %s: %w", collection, err)
	}

	return counter.Seq, nil
}

func (r *MongoRepository) CreateReading(ctx context.Context, src domain.Reading) (*domain.Reading, error) {
	id, err := r.nextID(ctx, readingsCollection)
	if err != nil {
		return nil, err
	}

	doc := readingDocument{
		ID:        id,
		SensorID:  src.SensorID,
		Type:      string(src.Type),
		Value:     src.Value,
		Timestamp: src.Timestamp.UTC(),
	}

	if _, err = r.db.Collection(readingsCollection).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func (r *MongoRepository) CreateAlert(ctx context.Context, src domain.Alert) (*domain.Alert, error) {
	id, err := r.nextID(ctx, alertsCollection)
	if err != nil {
		return nil, err
	}

	doc := alertDocument{
		ID:        id,
		Level:     string(src.Level),
		Source:    string(src.Source),
		Message:   src.Message,
		Timestamp: src.Timestamp.UTC(),
	}

	if _, err = r.db.Collection(alertsCollection).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func (r *MongoRepository) CreateActuatorEvent(ctx context.Context, src domain.ActuatorEvent) (*domain.ActuatorEvent, error) {
	id, err := r.nextID(ctx, eventsCollection)
	if err != nil {
		return nil, err
	}

	doc := eventDocument{
		ID:        id,
		Device:    string(src.Device),
		Action:    string(src.Action),
		Reason:    string(src.Reason),
		Mode:      string(src.Mode),
		State:     string(src.State),
		Timestamp: src.Timestamp.UTC(),
	}

	if _, err = r.db.Collection(eventsCollection).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert actuator event: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func newestFirst(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (r *MongoRepository) GetReadings(ctx context.Context, q database.ReadingQuery) ([]domain.Reading, error) {
	filter := bson.M{}
	if q.SensorID != "" {
		filter["sensor_id"] = q.SensorID
	}
	if q.Type != "" {
		filter["type"] = string(q.Type)
	}

	cursor, err := r.db.Collection(readingsCollection).Find(ctx, filter, newestFirst(q.Limit))
	if err != nil {
		return nil, err
	}

	docs := []readingDocument{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	readings := make([]domain.Reading, 0, len(docs))
	for _, d := range docs {
		readings = append(readings, d.toDomain())
	}

	return readings, nil
}

func (r *MongoRepository) GetAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	cursor, err := r.db.Collection(alertsCollection).Find(ctx, bson.M{}, newestFirst(limit))
	if err != nil {
		return nil, err
	}

	docs := []alertDocument{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	alerts := make([]domain.Alert, 0, len(docs))
	for _, d := range docs {
		alerts = append(alerts, d.toDomain())
	}

	return alerts, nil
}

func (r *MongoRepository) GetActuatorEvents(ctx context.Context, q database.EventQuery) ([]domain.ActuatorEvent, error) {
	filter := bson.M{}
	if q.Device != "" {
		filter["device"] = string(q.Device)
	}

	cursor, err := r.db.Collection(eventsCollection).Find(ctx, filter, newestFirst(q.Limit))
	if err != nil {
		return nil, err
	}

	docs := []eventDocument{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	events := make([]domain.ActuatorEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}

	return events, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

//CloseConnection disconnects the underlying client
func (r *MongoRepository) CloseConnection(ctx context.Context) error {
	if r.client != nil {
		return r.client.Disconnect(ctx)
	}
	return nil
}

func (d readingDocument) toDomain() domain.Reading {
	return domain.Reading{
		ID:        d.ID,
		SensorID:  d.SensorID,
		Type:      domain.SensorType(d.Type),
		Value:     d.Value,
		Timestamp: clock.FromStorage(d.Timestamp),
	}
}

func (d alertDocument) toDomain() domain.Alert {
	return domain.Alert{
		ID:        d.ID,
		Level:     domain.AlertLevel(d.Level),
		Source:    domain.AlertSource(d.Source),
		Message:   d.Message,
		Timestamp: clock.FromStorage(d.Timestamp),
	}
}

func (d eventDocument) toDomain() domain.ActuatorEvent {
	return domain.ActuatorEvent{
		ID:        d.ID,
		Device:    domain.Device(d.Device),
		Action:    domain.Action(d.Action),
		Reason:    domain.Reason(d.Reason),
		Mode:      domain.Mode(d.Mode),
		State:     domain.State(d.State),
		Timestamp: clock.FromStorage(d.Timestamp),
	}
}
