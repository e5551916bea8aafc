package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/turingroom/go/internal/game/delay"
	"github.com/mcdev12/turingroom/go/internal/game/room"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the game server's yaml configuration. Missing keys keep their defaults.
type Config struct {
	Game models.GameConfig `yaml:"game"`

	Rooms struct {
		FinishedTTL      time.Duration `yaml:"finished_ttl"`
		IdleTTL          time.Duration `yaml:"idle_ttl"`
		SweepInterval    time.Duration `yaml:"sweep_interval"`
		GeneratorTimeout time.Duration `yaml:"generator_timeout"`
		Seed             int64         `yaml:"seed"`
	} `yaml:"rooms"`

	Delay struct {
		GeneratedMin time.Duration `yaml:"generated_min"`
		GeneratedMax time.Duration `yaml:"generated_max"`
		SelfFloor    time.Duration `yaml:"self_floor"`
		JitterMax    time.Duration `yaml:"jitter_max"`
	} `yaml:"delay"`

	Generator struct {
		DefaultProfile string              `yaml:"default_profile"`
		Profiles       []generator.Profile `yaml:"profiles"`
	} `yaml:"generator"`

	Stream struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"stream"`
}

func defaultConfig() *Config {
	var c Config
	c.Game = models.DefaultGameConfig()

	rooms := room.DefaultConfig()
	c.Rooms.FinishedTTL = rooms.FinishedTTL
	c.Rooms.IdleTTL = rooms.IdleTTL
	c.Rooms.SweepInterval = rooms.SweepInterval
	c.Rooms.GeneratorTimeout = rooms.GeneratorTimeout

	d := delay.DefaultConfig()
	c.Delay.GeneratedMin = d.GeneratedMin
	c.Delay.GeneratedMax = d.GeneratedMax
	c.Delay.SelfFloor = d.SelfFloor
	c.Delay.JitterMax = d.JitterMax

	c.Stream.QueueSize = 256
	return &c
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Delay.GeneratedMax < c.Delay.GeneratedMin {
		return fmt.Errorf("delay.generated_max %s is below generated_min %s", c.Delay.GeneratedMax, c.Delay.GeneratedMin)
	}
	if c.Game.MinPlayers < 2 || c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("game player bounds %d..%d", c.Game.MinPlayers, c.Game.MaxPlayers)
	}
	seen := make(map[string]bool, len(c.Generator.Profiles))
	for _, p := range c.Generator.Profiles {
		if p.ID == "" || p.BaseURL == "" {
			return fmt.Errorf("generator profile needs id and base_url")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate generator profile %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (c *Config) roomConfig() room.Config {
	return room.Config{
		Defaults:         c.Game,
		GeneratorTimeout: c.Rooms.GeneratorTimeout,
		FinishedTTL:      c.Rooms.FinishedTTL,
		IdleTTL:          c.Rooms.IdleTTL,
		SweepInterval:    c.Rooms.SweepInterval,
		Seed:             c.Rooms.Seed,
	}
}

func (c *Config) delayConfig() delay.Config {
	return delay.Config{
		GeneratedMin: c.Delay.GeneratedMin,
		GeneratedMax: c.Delay.GeneratedMax,
		SelfFloor:    c.Delay.SelfFloor,
		JitterMax:    c.Delay.JitterMax,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func logLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
