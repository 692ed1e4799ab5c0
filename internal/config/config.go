// Package config loads tallierd's TOML configuration file, following the
// teacher's convention in plugins/inputs/statsd/statsd.go of TOML-tagged
// struct fields populated by BurntSushi/toml, rather than the reference
// implementation's Python ConfigParser ini format.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the on-disk [tallier]/[graphite] table layout; its
// FlushInterval is a float number of seconds (matching tallier.py's
// config default of 10.0) rather than a Go duration string, to stay
// close to the reference config format.
type fileConfig struct {
	Tallier struct {
		Port                 int     `toml:"port"`
		Interface            string  `toml:"interface"`
		NumWorkers           int     `toml:"num_workers"`
		FlushInterval        float64 `toml:"flush_interval"`
		CommandPort          int     `toml:"command_port"`
		EnableHeartbeat      bool    `toml:"enable_heartbeat"`
		HeartbeatURL         string  `toml:"heartbeat_url"`
		FrequencyCounterSize int     `toml:"frequency_counter_size"`
		ReadBufferSize       int     `toml:"read_buffer_size"`
	} `toml:"tallier"`
	Graphite struct {
		Addr string `toml:"graphite_addr"`
	} `toml:"graphite"`
}

// Config is tallierd's resolved runtime configuration.
type Config struct {
	Interface            string
	Port                 int
	NumWorkers           int
	FlushInterval        time.Duration
	CommandPort          int
	EnableHeartbeat      bool
	HeartbeatURL         string
	GraphiteAddr         string
	FrequencyCounterSize int
	ReadBufferSize       int
}

// defaults mirror tallier.py's DEFAULT_CONFIG.
func defaults() Config {
	return Config{
		Interface:            "0.0.0.0",
		Port:                 8125,
		NumWorkers:           4,
		FlushInterval:        10 * time.Second,
		CommandPort:          0,
		EnableHeartbeat:      false,
		FrequencyCounterSize: 1000,
		ReadBufferSize:       0,
	}
}

// Load reads and decodes a TOML config file at path, filling in defaults
// for any field left unset.
func Load(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
	}

	cfg := defaults()
	if meta.IsDefined("tallier", "port") {
		cfg.Port = fc.Tallier.Port
	}
	if meta.IsDefined("tallier", "interface") {
		cfg.Interface = fc.Tallier.Interface
	}
	if meta.IsDefined("tallier", "num_workers") {
		cfg.NumWorkers = fc.Tallier.NumWorkers
	}
	if meta.IsDefined("tallier", "flush_interval") {
		cfg.FlushInterval = time.Duration(fc.Tallier.FlushInterval * float64(time.Second))
	}
	if meta.IsDefined("tallier", "command_port") {
		cfg.CommandPort = fc.Tallier.CommandPort
	}
	if meta.IsDefined("tallier", "enable_heartbeat") {
		cfg.EnableHeartbeat = fc.Tallier.EnableHeartbeat
	}
	if meta.IsDefined("tallier", "heartbeat_url") {
		cfg.HeartbeatURL = fc.Tallier.HeartbeatURL
	}
	if meta.IsDefined("tallier", "frequency_counter_size") {
		cfg.FrequencyCounterSize = fc.Tallier.FrequencyCounterSize
	}
	if meta.IsDefined("tallier", "read_buffer_size") {
		cfg.ReadBufferSize = fc.Tallier.ReadBufferSize
	}
	if meta.IsDefined("graphite", "graphite_addr") {
		cfg.GraphiteAddr = fc.Graphite.Addr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make Master.Run fail in
// confusing ways, catching mistakes at startup instead.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("tallier.port %d out of range", c.Port)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("tallier.num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("tallier.flush_interval must be positive, got %s", c.FlushInterval)
	}
	if c.GraphiteAddr == "" {
		return fmt.Errorf("graphite.graphite_addr is required")
	}
	if c.EnableHeartbeat && c.HeartbeatURL == "" {
		return fmt.Errorf("tallier.heartbeat_url is required when enable_heartbeat is true")
	}
	return nil
}
