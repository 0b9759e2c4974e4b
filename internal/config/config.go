// Package config loads the panel agent configuration from defaults, an
// optional YAML file and STATPANEL_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"periph.io/x/conn/v3/physic"

	"github.com/flavioheleno/statpanel/internal/telemetry"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// STATPANEL_REFRESH_PERIOD=2s.
	EnvPrefix = "STATPANEL"
	// EnvConfig names the environment variable holding the config file path.
	EnvConfig = EnvPrefix + "_CONFIG"
)

// ErrConfig wraps every load and validation failure.
var ErrConfig = errors.New("config: invalid configuration")

// Config is the full agent configuration.
type Config struct {
	Bus       BusConfig       `mapstructure:"bus"`
	Panel     PanelConfig     `mapstructure:"panel"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Button    ButtonConfig    `mapstructure:"button"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Log       LogConfig       `mapstructure:"log"`
}

// BusConfig selects the I²C bus and the panel address on it.
type BusConfig struct {
	Name      string `mapstructure:"name"` // empty picks the first bus
	Address   uint16 `mapstructure:"address"`
	ChunkSize int    `mapstructure:"chunk_size"`
	// Speed is a clock such as "400kHz"; empty keeps the kernel setting.
	Speed     string `mapstructure:"speed"`
}

// PanelConfig describes how the panel is mounted.
type PanelConfig struct {
	Rotation int  `mapstructure:"rotation"`
	BGR      bool `mapstructure:"bgr"`
	Invert   bool `mapstructure:"invert"`
}

// TelemetryConfig selects what the identity band shows and where host
// metrics are read from.
type TelemetryConfig struct {
	Interface       string `mapstructure:"interface"`
	ShowIP          bool   `mapstructure:"show_ip"`
	TemperatureUnit string `mapstructure:"temperature_unit"`
	Root            string `mapstructure:"root"`
	ProcPath        string `mapstructure:"proc_path"`
	SysPath         string `mapstructure:"sys_path"`
}

// RefreshConfig paces the redraw loop.
type RefreshConfig struct {
	Period         time.Duration `mapstructure:"period"`
	MaxBusFailures int           `mapstructure:"max_bus_failures"`
}

// ButtonConfig describes the shutdown button line and its timing.
type ButtonConfig struct {
	Pin           string        `mapstructure:"pin"`
	ActiveLow     bool          `mapstructure:"active_low"`
	Debounce      time.Duration `mapstructure:"debounce"`
	Hold          time.Duration `mapstructure:"hold"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxReadErrors int           `mapstructure:"max_read_errors"`
}

// ShutdownConfig is the command run once the button is held.
type ShutdownConfig struct {
	Command []string `mapstructure:"command"`
}

// LogConfig sets the process log level and format.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.name", "")
	v.SetDefault("bus.address", 0x3C)
	v.SetDefault("bus.chunk_size", 1024)
	v.SetDefault("bus.speed", "")

	v.SetDefault("panel.rotation", 90)
	v.SetDefault("panel.bgr", true)
	v.SetDefault("panel.invert", true)

	v.SetDefault("telemetry.interface", "eth0")
	v.SetDefault("telemetry.show_ip", false)
	v.SetDefault("telemetry.temperature_unit", "C")
	v.SetDefault("telemetry.root", "/")
	v.SetDefault("telemetry.proc_path", "/proc")
	v.SetDefault("telemetry.sys_path", "/sys")

	v.SetDefault("refresh.period", "1s")
	v.SetDefault("refresh.max_bus_failures", 5)

	v.SetDefault("button.pin", "GPIO4")
	v.SetDefault("button.active_low", true)
	v.SetDefault("button.debounce", "50ms")
	v.SetDefault("button.hold", "3s")
	v.SetDefault("button.poll_interval", "10ms")
	v.SetDefault("button.max_read_errors", 3)

	v.SetDefault("shutdown.command", []string{"systemctl", "poweroff"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by STATPANEL_CONFIG, if any.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfig))
}

// Unit returns the parsed temperature unit.
func (c *Config) Unit() telemetry.Unit {
	u, ok := telemetry.ParseUnit(c.Telemetry.TemperatureUnit)
	if !ok {
		return telemetry.Celsius
	}
	return u
}

// BusSpeed returns the parsed bus clock, zero when unset.
func (c *Config) BusSpeed() (physic.Frequency, error) {
	var f physic.Frequency
	if c.Bus.Speed == "" {
		return 0, nil
	}
	if err := f.Set(c.Bus.Speed); err != nil {
		return 0, fmt.Errorf("%w: bus.speed %q: %w", ErrConfig, c.Bus.Speed, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: bus.speed %q must be positive", ErrConfig, c.Bus.Speed)
	}
	return f, nil
}

// LogLevel returns the parsed log level, info when unset.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if c.Bus.Address < 0x03 || c.Bus.Address > 0x77 {
		bad("bus.address %#x outside 0x03-0x77", c.Bus.Address)
	}
	if c.Bus.ChunkSize < 16 {
		bad("bus.chunk_size %d below 16", c.Bus.ChunkSize)
	}
	if _, err := c.BusSpeed(); err != nil {
		errs = append(errs, err)
	}
	switch c.Panel.Rotation {
	case 0, 90, 180, 270:
	default:
		bad("panel.rotation %d not one of 0, 90, 180, 270", c.Panel.Rotation)
	}
	if _, ok := telemetry.ParseUnit(c.Telemetry.TemperatureUnit); !ok {
		bad("telemetry.temperature_unit %q not C or F", c.Telemetry.TemperatureUnit)
	}
	if c.Refresh.Period <= 0 {
		bad("refresh.period must be positive")
	}
	if c.Refresh.MaxBusFailures < 1 {
		bad("refresh.max_bus_failures must be at least 1")
	}
	if c.Button.Pin == "" {
		bad("button.pin is empty")
	}
	if c.Button.Debounce <= 0 || c.Button.PollInterval <= 0 {
		bad("button.debounce and button.poll_interval must be positive")
	}
	if c.Button.Hold < c.Button.Debounce {
		bad("button.hold %s shorter than debounce %s", c.Button.Hold, c.Button.Debounce)
	}
	if c.Button.MaxReadErrors < 1 {
		bad("button.max_read_errors must be at least 1")
	}
	if len(c.Shutdown.Command) == 0 || c.Shutdown.Command[0] == "" {
		bad("shutdown.command is empty")
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		bad("log.level %q: %v", c.Log.Level, err)
	}
	return errors.Join(errs...)
}
