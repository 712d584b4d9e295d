// Package tuning loads the server's YAML parameter file. Flags select
// paths and addresses; everything behavioral lives here so deployments can
// retune without rebuilding.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen    string `yaml:"listen"`
	OpsListen string `yaml:"ops_listen"`

	Seed      int64  `yaml:"seed"`
	DayLength int    `yaml:"day_length_s"`
	MOTD      string `yaml:"motd"`

	World   World   `yaml:"world"`
	Net     Net     `yaml:"net"`
	Chat    Chat    `yaml:"chat"`
	Persist Persist `yaml:"persist"`
}

type World struct {
	MinY   int `yaml:"min_y"`
	MaxY   int `yaml:"max_y"`
	Ground int `yaml:"ground"`
	Relief int `yaml:"relief"`
}

type Net struct {
	IdleTimeoutS  int `yaml:"idle_timeout_s"`
	WriteTimeoutS int `yaml:"write_timeout_s"`
	QueueDepth    int `yaml:"queue_depth"`
}

type Chat struct {
	RatePerS float64 `yaml:"rate_per_s"`
	Burst    int     `yaml:"burst"`
}

type Persist struct {
	FlushIntervalS      int `yaml:"flush_interval_s"`
	FlushDirtyThreshold int `yaml:"flush_dirty_threshold"`
	BackupIntervalS     int `yaml:"backup_interval_s"`
}

// Defaults returns the configuration used when no file is given. The listen
// port and day length match the deployed client population's expectations.
func Defaults() Config {
	return Config{
		Listen:    ":4080",
		OpsListen: ":4081",
		Seed:      1337,
		DayLength: 600,
		MOTD:      "Welcome to Craft!",
		World: World{
			MinY:   0,
			MaxY:   255,
			Ground: 32,
			Relief: 16,
		},
		Net: Net{
			IdleTimeoutS:  60,
			WriteTimeoutS: 5,
			QueueDepth:    256,
		},
		Chat: Chat{
			RatePerS: 2,
			Burst:    8,
		},
		Persist: Persist{
			FlushIntervalS:      30,
			FlushDirtyThreshold: 64,
			BackupIntervalS:     0, // disabled unless configured
		},
	}
}

// Load reads path over the defaults, so a partial file only overrides what
// it names.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.World.MinY > c.World.MaxY {
		return fmt.Errorf("world.min_y %d above world.max_y %d", c.World.MinY, c.World.MaxY)
	}
	if c.Net.QueueDepth <= 0 {
		return fmt.Errorf("net.queue_depth must be positive")
	}
	if c.DayLength <= 0 {
		return fmt.Errorf("day_length_s must be positive")
	}
	return nil
}
