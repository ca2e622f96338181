// Package config layers server configuration from three sources:
// envconfig defaults and environment variables first, then an optional
// TOML file, then whatever the CLI overrides last. Flags > file > env.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blomqvist/feyarena/internal/protocol"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host string `envconfig:"FEYARENA_HOST" toml:"host" default:"0.0.0.0"`
	Port int    `envconfig:"FEYARENA_PORT" toml:"port" default:"5000"`

	// TestMultiplayer disables AI: bobbas hold Idle and the dragon
	// flies a non-attacking patrol.
	TestMultiplayer bool `envconfig:"FEYARENA_TEST_MULTIPLAYER" toml:"test_multiplayer" default:"false"`

	WorldBroadcastMillis  int `envconfig:"FEYARENA_WORLD_BROADCAST_MILLIS" toml:"world_broadcast_millis" default:"50"`
	EntityBroadcastMillis int `envconfig:"FEYARENA_ENTITY_BROADCAST_MILLIS" toml:"entity_broadcast_millis" default:"50"`

	BobbaCount  int `envconfig:"FEYARENA_BOBBA_COUNT" toml:"bobba_count" default:"3"`
	DragonCount int `envconfig:"FEYARENA_DRAGON_COUNT" toml:"dragon_count" default:"1"`
}

// Load processes the environment and, when path is non-empty, overlays
// the TOML file on top.
func Load(path string) (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("could not process env: %w", err)
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("could not decode config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.WorldBroadcastMillis <= 0 || c.EntityBroadcastMillis <= 0 {
		return fmt.Errorf("broadcast cadences must be positive")
	}
	if c.BobbaCount < 0 || c.DragonCount < 0 {
		return fmt.Errorf("entity counts must not be negative")
	}
	if c.BobbaCount+c.DragonCount > protocol.MaxEntities {
		return fmt.Errorf(
			"entity counts exceed pool capacity (%d+%d > %d)",
			c.BobbaCount, c.DragonCount, protocol.MaxEntities,
		)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) WorldInterval() time.Duration {
	return time.Duration(c.WorldBroadcastMillis) * time.Millisecond
}

func (c *Config) EntityInterval() time.Duration {
	return time.Duration(c.EntityBroadcastMillis) * time.Millisecond
}
