package config

import "time"

// TimingConfig holds every timing and capacity knob the gateway core
// consumes. The core reads these values; it never mutates them.
type TimingConfig struct {
	// Liveness: a session silent for longer than LivenessTimeout is
	// evicted by the registry sweep, which runs every SweepInterval.
	LivenessTimeout time.Duration
	SweepInterval   time.Duration

	// Maximum wait for a drone to acknowledge a dispatched command.
	CommandAckTimeout time.Duration

	// Per-subscriber outbound event buffer capacity. When a subscriber
	// falls behind, the oldest buffered event is dropped first.
	SubscriberBufferSize int

	// Altitude at or below which a drone in Landing is considered
	// back on the ground (meters).
	LandedAltitudeMax float64
}

// Config is the full gateway configuration.
type Config struct {
	ListenAddr          string
	AuditDir            string
	OperatorTokenSecret string
	Timing              TimingConfig
}

// Baseline returns the default configuration values.
func Baseline() *Config {
	return &Config{
		ListenAddr: ":8000",
		AuditDir:   "logs",
		Timing: TimingConfig{
			LivenessTimeout:      45 * time.Second,
			SweepInterval:        5 * time.Second,
			CommandAckTimeout:    3 * time.Second,
			SubscriberBufferSize: 50,
			LandedAltitudeMax:    0.5,
		},
	}
}
