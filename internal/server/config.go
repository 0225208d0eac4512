// Package server implements the authoritative match orchestrator: session
// admission, the per-tick critical path, snapshot broadcasting, and replay
// finalization.
package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds every match parameter as a value. There is no
// process-wide configuration; the config is constructed once and threaded
// through the orchestrator.
type ServerConfig struct {
	Seed                 uint64   `yaml:"seed"`
	TickRateHz           uint32   `yaml:"tick_rate_hz"`
	MaxFutureTicks       uint64   `yaml:"max_future_ticks"`
	InputLeadTicks       uint64   `yaml:"input_lead_ticks"`
	InputRateLimitPerSec uint32   `yaml:"input_rate_limit_per_sec"`
	MatchDurationTicks   uint64   `yaml:"match_duration_ticks"`
	ConnectTimeoutMS     uint64   `yaml:"connect_timeout_ms"`
	MaxPlayers           int      `yaml:"max_players"`
	ListenAddr           string   `yaml:"listen_addr"`
	RealtimeAddr         string   `yaml:"realtime_addr"`
	OpsListenAddr        string   `yaml:"ops_listen_addr"`
	ReplayDir            string   `yaml:"replay_dir"`
	TestMode             bool     `yaml:"test_mode"`
	TestPlayerIDs        []uint32 `yaml:"test_player_ids"`
}

// DefaultConfig returns the v0 parameters.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TickRateHz:           60,
		MaxFutureTicks:       120,
		InputLeadTicks:       1,
		InputRateLimitPerSec: 120,
		MatchDurationTicks:   3600,
		ConnectTimeoutMS:     30000,
		MaxPlayers:           2,
		ListenAddr:           ":7777",
		RealtimeAddr:         ":7778",
		OpsListenAddr:        ":9090",
		ReplayDir:            "replays",
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults untouched.
func LoadConfig(path string) (ServerConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the kernel or the wire format cannot
// honor.
func (c ServerConfig) Validate() error {
	if c.TickRateHz == 0 {
		return fmt.Errorf("server: tick_rate_hz must be positive")
	}
	if c.MaxPlayers < 1 {
		return fmt.Errorf("server: max_players must be at least 1")
	}
	if c.TestMode {
		if len(c.TestPlayerIDs) != c.MaxPlayers {
			return fmt.Errorf("server: test mode needs %d test_player_ids, have %d", c.MaxPlayers, len(c.TestPlayerIDs))
		}
		for _, id := range c.TestPlayerIDs {
			// The wire carries player ids as u32 but the semantic type is
			// 8-bit.
			if id > 255 {
				return fmt.Errorf("server: test player id %d exceeds 8-bit range", id)
			}
		}
	}
	return nil
}

// ConnectTimeout returns the session-arrival deadline an external caller
// polls against.
func (c ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}
