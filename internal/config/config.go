package config

import (
	"github.com/BurntSushi/toml"
)

// Config holds the various parameters required for running the simulator.
type Config struct {
	// UDP/OSC listening ports, one per simulation.
	PhysicsPort int
	HapticsPort int
	VisualPort  int

	// Peer receives outgoing OSC events (collisions, force magnitude, errors).
	PeerHost string
	PeerPort int

	// VisualBind is the HTTP bind address of the websocket scene mirror.
	VisualBind string

	// Timesteps, in milliseconds.
	PhysicsStepMs float64
	HapticsStepMs float64
	VisualStepMs  float64

	Gravity [3]float64

	// QueueCap is the per-simulation message queue capacity.
	QueueCap int

	// HapticStiffness is the default surface stiffness used by the
	// proxy force algorithm when an object does not override it.
	HapticStiffness float64

	// RecordPath, when non-empty, enables the sqlite flight recorder.
	RecordPath string

	// RequireDevice makes a missing haptic device fatal at startup.
	RequireDevice bool
}

// DefaultConf are the default parameters.
var DefaultConf = &Config{
	PhysicsPort:     7774,
	HapticsPort:     7775,
	VisualPort:      7776,
	PeerHost:        "localhost",
	PeerPort:        7770,
	VisualBind:      ":8090",
	PhysicsStepMs:   10,
	HapticsStepMs:   1,
	VisualStepMs:    33,
	Gravity:         [3]float64{0, 0, -9.81},
	QueueCap:        1024,
	HapticStiffness: 300,
	RecordPath:      "",
	RequireDevice:   false,
}

// ParseConfig parses the TOML config file whose path is provided.
func ParseConfig(path string) (*Config, error) {
	// config file overwrites default parameters
	conf := *DefaultConf
	_, err := toml.DecodeFile(path, &conf)
	return &conf, err
}
