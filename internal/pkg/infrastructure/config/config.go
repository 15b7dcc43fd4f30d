package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/automation"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/thresholds"
)

//EnvPrefix is prepended to every environment variable that overrides a config key
const EnvPrefix string = "GREENHOUSE"

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Storage struct {
		Driver string `mapstructure:"driver"`
		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
		Postgres database.PostgresConfig `mapstructure:"postgres"`
		MongoDB  struct {
			URI      string `mapstructure:"uri"`
			Database string `mapstructure:"database"`
		} `mapstructure:"mongodb"`
	} `mapstructure:"storage"`

	Thresholds map[string]thresholds.Range `mapstructure:"thresholds"`

	Automation struct {
		NormalStreakTarget int `mapstructure:"normal_streak_target"`
	} `mapstructure:"automation"`

	Persistence persistence.Config `mapstructure:"persistence"`

	History struct {
		ReadingsCapacity int `mapstructure:"readings_capacity"`
		AlertsCapacity   int `mapstructure:"alerts_capacity"`
	} `mapstructure:"history"`

	Ingest struct {
		SurfaceDegradedDurability bool `mapstructure:"surface_degraded_durability"`
	} `mapstructure:"ingest"`

	MQTT MQTT `mapstructure:"mqtt"`

	Messaging struct {
		Enabled     bool   `mapstructure:"enabled"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"messaging"`

	Influx struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Token   string `mapstructure:"token"`
		Org     string `mapstructure:"org"`
		Bucket  string `mapstructure:"bucket"`
	} `mapstructure:"influx"`
}

type MQTT struct {
	Enabled       bool   `mapstructure:"enabled"`
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	ReadingsTopic string `mapstructure:"readings_topic"`
	ActuatorTopic string `mapstructure:"actuator_topic"`
	QoS           byte   `mapstructure:"qos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8880")
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "greenhouse.db")
	v.SetDefault("storage.postgres.sslmode", "require")
	v.SetDefault("storage.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongodb.database", "greenhouse")

	v.SetDefault("automation.normal_streak_target", 5)

	v.SetDefault("persistence.reading_attempts", 3)
	v.SetDefault("persistence.retry_backoff", 100*time.Millisecond)
	v.SetDefault("persistence.write_timeout", 5*time.Second)

	v.SetDefault("history.readings_capacity", 5000)
	v.SetDefault("history.alerts_capacity", 1000)

	v.SetDefault("ingest.surface_degraded_durability", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "greenhouse-automation")
	v.SetDefault("mqtt.readings_topic", "greenhouse/readings")
	v.SetDefault("mqtt.actuator_topic", "greenhouse/actuators")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.service_name", "greenhouse-automation")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.host", "http://localhost:8086")
	v.SetDefault("influx.bucket", "greenhouse")
}

//Load reads .env files, the yaml file at path (if it exists) and GREENHOUSE_*
//environment variables, in increasing order of precedence
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "SERVICE_PORT")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err = v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if !v.IsSet("thresholds") {
		cfg.Thresholds = nil
	}

	return cfg, nil
}

//ThresholdTable merges the configured thresholds over the default table. A
//configured sensor type replaces its whole default range.
func (c *Config) ThresholdTable() (thresholds.Table, error) {
	table := thresholds.DefaultTable()
	for name, rng := range c.Thresholds {
		t, err := domain.ParseSensorType(name)
		if err != nil {
			return nil, fmt.Errorf("bad threshold %q: %w", name, err)
		}
		table[t] = rng
	}

	return table, nil
}

//AutomationConfig collects the engine tunables spread over several sections
func (c *Config) AutomationConfig() automation.Config {
	return automation.Config{
		NormalStreakTarget:        c.Automation.NormalStreakTarget,
		ReadingsCapacity:          c.History.ReadingsCapacity,
		AlertsCapacity:            c.History.AlertsCapacity,
		SurfaceDegradedDurability: c.Ingest.SurfaceDegradedDurability,
	}
}
