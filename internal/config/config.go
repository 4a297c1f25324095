// Package config loads the settings a gatewaydemo-style binary needs to
// wire up a session and its timer scheduler: a YAML document for the
// bulk of it, with environment variable overrides for the handful of
// knobs that benefit from per-deployment tuning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stormcord/core/internal/gateway"
	"github.com/stormcord/core/internal/timer"
)

// Gateway mirrors gateway.Config in YAML-friendly form. Durations are
// plain seconds rather than Go duration strings, matching the rest of
// the teacher corpus's preference for primitive config fields over
// custom unmarshalers.
type Gateway struct {
	BaseURL              string `yaml:"base_url"`
	ReconnectThreshold   int    `yaml:"reconnect_threshold"`
	WorkerPoolSize       int    `yaml:"worker_pool_size"`
	HandshakeTimeoutSecs int    `yaml:"handshake_timeout_secs"`
}

// Timer mirrors timer.Config.
type Timer struct {
	MaxDrainIterations int `yaml:"max_drain_iterations"`
	MaxDrainMillis     int `yaml:"max_drain_millis"`
}

// Config is the top-level document shape decoded from gateway.yaml.
type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Timer   Timer   `yaml:"timer"`
}

// Load reads and decodes the YAML file at path, then applies any
// recognized environment variable overrides on top of it.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides mirrors cmd/server's os.Getenv pattern: a
// non-empty environment variable wins over whatever the file said.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_RECONNECT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.ReconnectThreshold = n
		}
	}
	if v := os.Getenv("GATEWAY_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.WorkerPoolSize = n
		}
	}
}

// GatewayConfig translates the decoded document into a gateway.Config,
// leaving zero fields for gateway's own withDefaults to fill in.
func (c Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		BaseURL:            c.Gateway.BaseURL,
		ReconnectThreshold: c.Gateway.ReconnectThreshold,
		WorkerPoolSize:     c.Gateway.WorkerPoolSize,
		HandshakeTimeout:   time.Duration(c.Gateway.HandshakeTimeoutSecs) * time.Second,
	}
}

// TimerConfig translates the decoded document into a timer.Config.
func (c Config) TimerConfig() timer.Config {
	return timer.Config{
		MaxDrainIterations: c.Timer.MaxDrainIterations,
		MaxDrainDuration:   time.Duration(c.Timer.MaxDrainMillis) * time.Millisecond,
	}
}
