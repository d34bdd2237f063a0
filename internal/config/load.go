package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk schema of dcg.yaml. Durations are expressed
// as integer milliseconds so the file stays shell- and operator-friendly.
type fileConfig struct {
	ListenAddr          string `yaml:"listenAddr"`
	AuditDir            string `yaml:"auditDir"`
	OperatorTokenSecret string `yaml:"operatorTokenSecret"`
	Timing              struct {
		LivenessTimeoutMs    int     `yaml:"livenessTimeoutMs"`
		SweepIntervalMs      int     `yaml:"sweepIntervalMs"`
		CommandAckTimeoutMs  int     `yaml:"commandAckTimeoutMs"`
		SubscriberBufferSize int     `yaml:"subscriberBufferSize"`
		LandedAltitudeMax    float64 `yaml:"landedAltitudeMax"`
	} `yaml:"timing"`
}

// Load merges Baseline() defaults, an optional dcg.yaml, and DCG_*
// environment overrides, then validates the result.
func Load() (*Config, error) {
	return LoadFile("dcg.yaml")
}

// LoadFile is Load with an explicit config file path. A missing file is
// not an error; the baseline plus env overrides applies.
func LoadFile(path string) (*Config, error) {
	cfg := Baseline()

	if _, err := os.Stat(path); err == nil {
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.AuditDir != "" {
		cfg.AuditDir = fc.AuditDir
	}
	if fc.OperatorTokenSecret != "" {
		cfg.OperatorTokenSecret = fc.OperatorTokenSecret
	}
	if fc.Timing.LivenessTimeoutMs > 0 {
		cfg.Timing.LivenessTimeout = time.Duration(fc.Timing.LivenessTimeoutMs) * time.Millisecond
	}
	if fc.Timing.SweepIntervalMs > 0 {
		cfg.Timing.SweepInterval = time.Duration(fc.Timing.SweepIntervalMs) * time.Millisecond
	}
	if fc.Timing.CommandAckTimeoutMs > 0 {
		cfg.Timing.CommandAckTimeout = time.Duration(fc.Timing.CommandAckTimeoutMs) * time.Millisecond
	}
	if fc.Timing.SubscriberBufferSize > 0 {
		cfg.Timing.SubscriberBufferSize = fc.Timing.SubscriberBufferSize
	}
	if fc.Timing.LandedAltitudeMax > 0 {
		cfg.Timing.LandedAltitudeMax = fc.Timing.LandedAltitudeMax
	}

	return nil
}

// applyEnvOverrides applies DCG_* environment variables on top of the
// current configuration. Durations use Go duration syntax ("30s").
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("DCG_ADDR"); val != "" {
		cfg.ListenAddr = val
	}
	if val := os.Getenv("DCG_AUDIT_DIR"); val != "" {
		cfg.AuditDir = val
	}
	if val := os.Getenv("DCG_OPERATOR_TOKEN_SECRET"); val != "" {
		cfg.OperatorTokenSecret = val
	}
	if val := os.Getenv("DCG_TIMING_LIVENESS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Timing.LivenessTimeout = d
		}
	}
	if val := os.Getenv("DCG_TIMING_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Timing.SweepInterval = d
		}
	}
	if val := os.Getenv("DCG_TIMING_COMMAND_ACK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Timing.CommandAckTimeout = d
		}
	}
	if val := os.Getenv("DCG_TIMING_SUBSCRIBER_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Timing.SubscriberBufferSize = n
		}
	}
	if val := os.Getenv("DCG_TIMING_LANDED_ALTITUDE_MAX"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			cfg.Timing.LandedAltitudeMax = f
		}
	}
}
