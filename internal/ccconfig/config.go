// Package ccconfig holds the runtime tuning knobs shared by the memory
// and node resources. The zero configuration disables all optional
// bookkeeping; embedders can load overrides from a TOML file.
package ccconfig

import (
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Config controls optional tracing and tracking behavior
type Config struct {
	// Trace enables per-operation logging on byte resources
	Trace bool `toml:"trace"`
	// NodeTrace enables per-operation logging on the node resource
	NodeTrace bool `toml:"node_trace"`
	// TrackAllocations keeps per-block metadata on counting resources
	TrackAllocations bool `toml:"track_allocations"`
	// EnableLeakDetection flags blocks older than LeakThreshold
	EnableLeakDetection bool `toml:"enable_leak_detection"`
	// LeakThreshold is the age after which a live block is suspicious
	LeakThreshold time.Duration `toml:"leak_threshold"`
}

// DefaultConfig returns the configuration used when no file is loaded.
func DefaultConfig() *Config {
	return &Config{
		Trace:               false,
		NodeTrace:           false,
		TrackAllocations:    true,
		EnableLeakDetection: false,
		LeakThreshold:       5 * time.Minute,
	}
}

// fileConfig mirrors Config with the duration as a string so that TOML
// files can write "30s" instead of nanosecond counts.
type fileConfig struct {
	Trace               *bool   `toml:"trace"`
	NodeTrace           *bool   `toml:"node_trace"`
	TrackAllocations    *bool   `toml:"track_allocations"`
	EnableLeakDetection *bool   `toml:"enable_leak_detection"`
	LeakThreshold       *string `toml:"leak_threshold"`
}

// LoadFile reads a TOML file and overlays it onto the defaults. Missing
// keys keep their default values.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, err
	}
	return overlay(DefaultConfig(), &fc)
}

// Load parses TOML data and overlays it onto the defaults.
func Load(data string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.Decode(data, &fc); err != nil {
		return nil, err
	}
	return overlay(DefaultConfig(), &fc)
}

func overlay(cfg *Config, fc *fileConfig) (*Config, error) {
	if fc.Trace != nil {
		cfg.Trace = *fc.Trace
	}
	if fc.NodeTrace != nil {
		cfg.NodeTrace = *fc.NodeTrace
	}
	if fc.TrackAllocations != nil {
		cfg.TrackAllocations = *fc.TrackAllocations
	}
	if fc.EnableLeakDetection != nil {
		cfg.EnableLeakDetection = *fc.EnableLeakDetection
	}
	if fc.LeakThreshold != nil {
		d, err := time.ParseDuration(*fc.LeakThreshold)
		if err != nil {
			return nil, err
		}
		cfg.LeakThreshold = d
	}
	return cfg, nil
}

// Logger builds the logger matching cfg: a production logger when any
// tracing is enabled, a nop logger otherwise.
func Logger(cfg *Config) *zap.Logger {
	if cfg != nil && (cfg.Trace || cfg.NodeTrace) {
		logger, err := zap.NewProduction()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}
