package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/aakashthirteen/football-stars/go/internal/match/gateway"
	"github.com/aakashthirteen/football-stars/go/internal/match/publisher"
	"github.com/aakashthirteen/football-stars/go/internal/match/scheduler"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		DrainTimeout    time.Duration `yaml:"drain_timeout"`
	} `yaml:"server"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Gateway   gateway.Config   `yaml:"gateway"`
	Publisher publisher.Config `yaml:"publisher"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Scheduler: scheduler.DefaultConfig(),
		Gateway:   gateway.DefaultConfig(),
		Publisher: publisher.DefaultConfig(),
	}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.DrainTimeout = 10 * time.Second
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults; a missing file keeps the defaults.
// Environment variables win over both.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(config)
	return config, nil
}

func applyEnv(c *Config) {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Scheduler.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.Scheduler.TickInterval)
	c.Scheduler.CheckpointInterval = getEnvAsDuration("CHECKPOINT_INTERVAL", c.Scheduler.CheckpointInterval)
	c.Scheduler.HalftimeBreak = getEnvAsDuration("HALFTIME_BREAK", c.Scheduler.HalftimeBreak)
	c.Scheduler.DispatchWorkers = getEnvAsInt("DISPATCH_WORKERS", c.Scheduler.DispatchWorkers)
	c.Publisher.Kind = publisher.Kind(getEnv("PUBLISHER_KIND", string(c.Publisher.Kind)))
	c.Publisher.JetStream.URL = getEnv("NATS_URL", c.Publisher.JetStream.URL)
	c.Publisher.RabbitMQ.URL = getEnv("AMQP_URL", c.Publisher.RabbitMQ.URL)
}
