package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	EntitySet  string `yaml:"entity_set"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Game GameConfig `yaml:"game"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type GameConfig struct {
	// Seconds per world turn, in order. Turns past the end of the list reuse
	// the last entry.
	TurnDurationsS []int `yaml:"turn_durations_s"`

	CasteCount       int               `yaml:"caste_count"`
	RoadCost         map[string]string `yaml:"road_cost"`
	CombatRandomness int               `yaml:"combat_randomness"`
}

type RateLimitConfig struct {
	// Action requests per second per team, with a small burst.
	PerTeamPerSecond float64 `yaml:"per_team_per_second"`
	Burst            int     `yaml:"burst"`
}

func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	c.ApplyDefaults()
	return c, nil
}

func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.EntitySet == "" {
		c.EntitySet = "data/entityset.json"
	}
	if len(c.Game.TurnDurationsS) == 0 {
		c.Game.TurnDurationsS = []int{900}
	}
	if c.Game.CasteCount <= 0 {
		c.Game.CasteCount = 3
	}
	if c.RateLimit.PerTeamPerSecond <= 0 {
		c.RateLimit.PerTeamPerSecond = 2
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
}
