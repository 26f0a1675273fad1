// Package config loads rig configuration for go-animatronic commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-animatronic/pkg/actuator"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
)

// Default rig configuration.
const (
	DefaultListen            = ":8080"
	DefaultClipDir           = "animations"
	DefaultTelemetryInterval = 100 * time.Millisecond
	DefaultDriver            = DriverLog
	DefaultLogLevel          = "info"
)

// Output drivers.
const (
	DriverLog    = "log"
	DriverMemory = "memory"
	DriverHTTP   = "http"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid")

// Config describes one animatronic rig.
type Config struct {
	FrameRate                 float64          `yaml:"frame_rate"`
	CrossfadeSeconds          float64          `yaml:"crossfade_seconds"`
	PlaylistTransitionSeconds float64          `yaml:"playlist_transition_seconds"`
	DefaultPosition           float64          `yaml:"default_position"`
	ReleaseOnExit             bool             `yaml:"release_on_exit"`
	ClipDir                   string           `yaml:"clip_dir"`
	Playlist                  string           `yaml:"playlist,omitempty"`
	Actuators                 []ActuatorConfig `yaml:"actuators"`
	Output                    OutputConfig     `yaml:"output"`
	Server                    ServerConfig     `yaml:"server"`
	LogLevel                  string           `yaml:"log_level"`
}

// ActuatorConfig binds one servo channel.
type ActuatorConfig struct {
	ID    int          `yaml:"id"`
	Name  string       `yaml:"name,omitempty"`
	Min   *float64     `yaml:"min,omitempty"`
	Max   *float64     `yaml:"max,omitempty"`
	Remap *RemapConfig `yaml:"remap,omitempty"`
}

// RemapConfig maps mixer values in From onto driver values in To.
type RemapConfig struct {
	From [2]float64 `yaml:"from"`
	To   [2]float64 `yaml:"to"`
}

// OutputConfig selects the servo driver.
type OutputConfig struct {
	Driver  string        `yaml:"driver"`
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig configures the control surface.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	EnableCORS        bool          `yaml:"enable_cors"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}

// Default returns a rig with no actuators and the mixer defaults.
func Default() *Config {
	return &Config{
		FrameRate:                 mixer.DefaultFrameRate,
		CrossfadeSeconds:          mixer.DefaultCrossfade.Seconds(),
		PlaylistTransitionSeconds: mixer.DefaultPlaylistTransition.Seconds(),
		DefaultPosition:           mixer.DefaultPosition,
		ClipDir:                   DefaultClipDir,
		Output: OutputConfig{
			Driver:  DefaultDriver,
			Timeout: actuator.DefaultBridgeTimeout,
		},
		Server: ServerConfig{
			Listen:            DefaultListen,
			EnableCORS:        true,
			TelemetryInterval: DefaultTelemetryInterval,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from RIG_LISTEN, RIG_CLIP_DIR, RIG_BRIDGE_URL
// and LOG_LEVEL when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RIG_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("RIG_CLIP_DIR"); v != "" {
		c.ClipDir = v
	}
	if v := os.Getenv("RIG_BRIDGE_URL"); v != "" {
		c.Output.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the config for values the mixer cannot run with.
func (c *Config) Validate() error {
	if !(c.FrameRate >= mixer.MinFrameRate && c.FrameRate <= mixer.MaxFrameRate) {
		return fmt.Errorf("%w: frame_rate must be in [%v, %v], got %v",
			ErrInvalidConfig, mixer.MinFrameRate, mixer.MaxFrameRate, c.FrameRate)
	}
	if c.CrossfadeSeconds < 0 {
		return fmt.Errorf("%w: crossfade_seconds must not be negative", ErrInvalidConfig)
	}
	if c.PlaylistTransitionSeconds < 0 {
		return fmt.Errorf("%w: playlist_transition_seconds must not be negative", ErrInvalidConfig)
	}

	seen := make(map[int]bool, len(c.Actuators))
	for _, a := range c.Actuators {
		if seen[a.ID] {
			return fmt.Errorf("%w: actuator %d listed twice", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = true
		if (a.Min == nil) != (a.Max == nil) {
			return fmt.Errorf("%w: actuator %d needs both min and max", ErrInvalidConfig, a.ID)
		}
		if a.Min != nil && *a.Min > *a.Max {
			return fmt.Errorf("%w: actuator %d has min %v > max %v", ErrInvalidConfig, a.ID, *a.Min, *a.Max)
		}
	}

	switch c.Output.Driver {
	case DriverLog, DriverMemory:
	case DriverHTTP:
		if c.Output.URL == "" {
			return fmt.Errorf("%w: http driver needs output.url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Output.Driver)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen is empty", ErrInvalidConfig)
	}
	if c.Server.TelemetryInterval <= 0 {
		return fmt.Errorf("%w: server.telemetry_interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Bindings converts the actuator list into actuator bindings.
func (c *Config) Bindings() []actuator.Binding {
	bindings := make([]actuator.Binding, 0, len(c.Actuators))
	for _, a := range c.Actuators {
		b := actuator.Binding{ID: a.ID, Name: a.Name}
		if a.Remap != nil {
			b.Remap = actuator.RemapLinear(a.Remap.From[0], a.Remap.From[1], a.Remap.To[0], a.Remap.To[1])
		}
		if a.Min != nil && a.Max != nil {
			b.Range = &actuator.Range{Min: *a.Min, Max: *a.Max}
		}
		bindings = append(bindings, b)
	}
	return bindings
}

// Mixer returns the mixer settings.
func (c *Config) Mixer() mixer.Config {
	return mixer.Config{
		FrameRate:          c.FrameRate,
		Crossfade:          seconds(c.CrossfadeSeconds),
		PlaylistTransition: seconds(c.PlaylistTransitionSeconds),
		DefaultPosition:    c.DefaultPosition,
		ReleaseOnExit:      c.ReleaseOnExit,
	}
}

// Driver builds the configured servo driver.
func (c *Config) Driver() (actuator.Driver, error) {
	switch c.Output.Driver {
	case DriverLog:
		return actuator.NewLogDriver(), nil
	case DriverMemory:
		return actuator.NewMemoryDriver(), nil
	case DriverHTTP:
		return actuator.NewHTTPDriver(c.Output.URL, c.Output.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Output.Driver)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
