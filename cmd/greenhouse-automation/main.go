package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/actuators"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/automation"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/influx"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	bus "github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/messaging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/mqtt"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/mongodb"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/websocket"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/notification"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/thresholds"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
)

func main() {

	serviceName := "greenhouse-automation"

	configPath := flag.String("config", "config.yaml", "path to an optional yaml configuration file")
	flag.Parse()

	log := logging.NewLogger()
	log.Infof("Starting up %s ...", serviceName)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	if err = logging.SetLevel(cfg.Log.Level); err != nil {
		log.Warnf("Ignoring unknown log level %q", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := openDatastore(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open datastore: %s", err.Error())
	}
	defer closeDB()

	table, err := cfg.ThresholdTable()
	if err != nil {
		log.Fatalf("Invalid thresholds: %s", err.Error())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	gateway := persistence.NewGateway(db, cfg.Persistence, log, persistence.WithObserver(m))
	defer gateway.Close()

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	listeners := notification.NewFanout(m, hub)

	if cfg.Messaging.Enabled {
		messenger, err := messaging.Initialize(messaging.LoadConfiguration(cfg.Messaging.ServiceName))
		if err != nil {
			log.Fatalf("Failed to connect to the message bus: %s", err.Error())
		}
		defer messenger.Close()

		listeners.Add(bus.NewPublisher(messenger, log))
	}

	if cfg.Influx.Enabled {
		mirror := influx.NewMirror(cfg.Influx.Host, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, log)
		go mirror.Run(ctx)

		listeners.Add(mirror)
	}

	engine := automation.NewEngine(
		cfg.AutomationConfig(), thresholds.NewEvaluator(table), actuators.NewRegistry(), gateway, log,
		automation.WithListener(listeners),
	)

	svc := application.NewService(engine, db, log)

	if cfg.MQTT.Enabled {
		bridge := mqtt.NewBridge(cfg.MQTT, svc.IngestPayload, svc.ControlFromPayload, log)
		if err = bridge.Connect(); err != nil {
			log.Fatalf("Failed to connect to the mqtt broker: %s", err.Error())
		}
		defer bridge.Disconnect()

		listeners.Add(bridge)
	}

	router := application.CreateRouter(log, svc, application.Extras{
		WebSocket: hub,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	if err = application.CreateRouterAndStartServing(ctx, log, cfg.Server.Port, router); err != nil {
		log.Errorf("http server failed: %s", err.Error())
	}

	log.Infof("%s stopped", serviceName)
}

//openDatastore connects to the configured storage driver and returns the
//datastore together with a function that releases it
func openDatastore(ctx context.Context, cfg *config.Config, log logging.Logger) (database.Datastore, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(cfg.Storage.SQLite.Path), log)
		return db, func() {}, err

	case "postgres":
		db, err := database.NewDatabaseConnection(database.NewPostgreSQLConnector(cfg.Storage.Postgres, log), log)
		return db, func() {}, err

	case "mongodb":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		repo, err := mongodb.NewMongoRepository(connectCtx, cfg.Storage.MongoDB.URI, cfg.Storage.MongoDB.Database, log)
		if err != nil {
			return nil, nil, err
		}

		return repo, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.CloseConnection(closeCtx); err != nil {
				log.Errorf("failed to close mongodb connection: %s", err.Error())
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
