package config

import "fmt"

// Validate checks configuration invariants before the gateway starts.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	t := cfg.Timing
	if t.LivenessTimeout <= 0 {
		return fmt.Errorf("liveness timeout must be positive, got %v", t.LivenessTimeout)
	}
	if t.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", t.SweepInterval)
	}
	if t.SweepInterval > t.LivenessTimeout {
		return fmt.Errorf("sweep interval %v exceeds liveness timeout %v", t.SweepInterval, t.LivenessTimeout)
	}
	if t.CommandAckTimeout <= 0 {
		return fmt.Errorf("command ack timeout must be positive, got %v", t.CommandAckTimeout)
	}
	if t.SubscriberBufferSize <= 0 {
		return fmt.Errorf("subscriber buffer size must be positive, got %d", t.SubscriberBufferSize)
	}
	if t.LandedAltitudeMax < 0 {
		return fmt.Errorf("landed altitude threshold must not be negative, got %f", t.LandedAltitudeMax)
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}

	return nil
}
