package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the daemon.
type Config struct {
	// HTTPAddr is the listen address of the API server.
	HTTPAddr string `yaml:"http_addr"`

	// LogLevel is the zerolog level name.
	LogLevel string `yaml:"log_level"`

	// Storage selects the backing store: memory or postgres.
	Storage struct {
		Backend     string `yaml:"backend"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`

	// Locking selects the alert dedup lock scope: local or redis.
	Locking struct {
		Backend   string        `yaml:"backend"`
		RedisAddr string        `yaml:"redis_addr"`
		LeaseTTL  time.Duration `yaml:"lease_ttl"`
	} `yaml:"locking"`

	// MQTT configures the inbound reading subscriber. Disabled when the
	// broker URL is empty; readings then arrive over HTTP only.
	MQTT struct {
		BrokerURL string `yaml:"broker_url"`
		ClientID  string `yaml:"client_id"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		QoS       byte   `yaml:"qos"`
	} `yaml:"mqtt"`

	// Notify configures the Kafka alert notification publisher. Disabled
	// when no brokers are set.
	Notify struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		QueueSize    int           `yaml:"queue_size"`
		Workers      int           `yaml:"workers"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"notify"`

	// Bootstrap seeds the default organization and plant profiles at
	// startup when true.
	Bootstrap bool `yaml:"bootstrap"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	cfg := &Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
	}
	cfg.Storage.Backend = "memory"
	cfg.Locking.Backend = "local"
	cfg.Locking.LeaseTTL = 5 * time.Second
	cfg.MQTT.ClientID = "aquasense-core"
	cfg.MQTT.QoS = 1
	cfg.Notify.Topic = "aquasense.alerts"
	cfg.Notify.QueueSize = 1000
	cfg.Notify.Workers = 2
	cfg.Notify.BatchSize = 50
	cfg.Notify.BatchTimeout = 200 * time.Millisecond
	cfg.Bootstrap = true
	return cfg
}

// Load builds the config from defaults, an optional YAML file, and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AQUASENSE_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("AQUASENSE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AQUASENSE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("AQUASENSE_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("AQUASENSE_REDIS_ADDR"); v != "" {
		c.Locking.Backend = "redis"
		c.Locking.RedisAddr = v
	}
	if v := os.Getenv("AQUASENSE_MQTT_BROKER"); v != "" {
		c.MQTT.BrokerURL = v
	}
}
