// Package config provides configuration management for hoofbeat using
// Viper, loading from the config file, HOOFBEAT_-prefixed environment
// variables, and command-line flags. The resolved Config is built once at
// startup and passed by reference to every component that needs it; there
// are no process-wide configuration singletons.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hoofbeat/hoofbeat/internal/errors"
)

// Config is the resolved hoofbeat configuration.
type Config struct {
	// ProjectDir is the directory being served and watched, as given on
	// the command line (canonicalized later by the scanner).
	ProjectDir string `yaml:"project_dir"`

	Project   ListenConfig    `yaml:"project"`
	Status    ListenConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Rate      RateConfig      `yaml:"rate"`
}

// ListenConfig describes one HTTP listener. Port 0 asks the system for a
// free port.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port form for net.Listen.
func (l ListenConfig) Addr() string {
	host := l.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, l.Port)
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig configures the change-notification fan-out.
type NotifyConfig struct {
	// Buffer is the per-subscriber notification buffer; on overflow the
	// subscriber's oldest queued notification is dropped.
	Buffer int `yaml:"buffer"`
}

// ReconcileConfig configures the marker-file protocol.
type ReconcileConfig struct {
	// InitialTimeout is the first marker wait; it doubles on every retry
	// up to the protocol cap.
	InitialTimeout time.Duration `yaml:"initial_timeout"`
}

// RateConfig bounds request rates on the status surface.
type RateConfig struct {
	// PerSecond is the sustained request rate allowed per remote host.
	PerSecond float64 `yaml:"per_second"`
	// Burst is the instantaneous burst allowance per remote host.
	Burst int `yaml:"burst"`
}

// SetDefaults registers every configuration default with viper. Called
// from command initialization so flag binding and file loading agree on
// the key space.
func SetDefaults() {
	viper.SetDefault("project.host", "::1")
	viper.SetDefault("project.port", 0)
	viper.SetDefault("status.host", "::1")
	viper.SetDefault("status.port", 0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("notify.buffer", 64)
	viper.SetDefault("reconcile.initial_timeout", "5s")
	viper.SetDefault("status.rate.per_second", 50.0)
	viper.SetDefault("status.rate.burst", 100)
}

// Load resolves the effective configuration from viper and validates it.
func Load() (*Config, error) {
	SetDefaults()

	cfg := &Config{
		ProjectDir: viper.GetString("project_dir"),
		Project: ListenConfig{
			Host: viper.GetString("project.host"),
			Port: viper.GetInt("project.port"),
		},
		Status: ListenConfig{
			Host: viper.GetString("status.host"),
			Port: viper.GetInt("status.port"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Notify: NotifyConfig{
			Buffer: viper.GetInt("notify.buffer"),
		},
		Reconcile: ReconcileConfig{
			InitialTimeout: viper.GetDuration("reconcile.initial_timeout"),
		},
		Rate: RateConfig{
			PerSecond: viper.GetFloat64("status.rate.per_second"),
			Burst:     viper.GetInt("status.rate.burst"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if err := validateListen("project", cfg.Project); err != nil {
		return err
	}
	if err := validateListen("status", cfg.Status); err != nil {
		return err
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", cfg.Log.Format)
	}
	if cfg.Notify.Buffer <= 0 {
		return fmt.Errorf("notify.buffer must be positive, got %d", cfg.Notify.Buffer)
	}
	if cfg.Reconcile.InitialTimeout <= 0 {
		return fmt.Errorf("reconcile.initial_timeout must be positive, got %s", cfg.Reconcile.InitialTimeout)
	}
	if cfg.Rate.PerSecond <= 0 {
		return fmt.Errorf("status.rate.per_second must be positive, got %v", cfg.Rate.PerSecond)
	}
	if cfg.Rate.Burst <= 0 {
		return fmt.Errorf("status.rate.burst must be positive, got %d", cfg.Rate.Burst)
	}
	return nil
}

func validateListen(name string, l ListenConfig) error {
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("%s.port %d is not in valid range 0-65535", name, l.Port)
	}
	// Basic validation: no characters that could smuggle anything into a
	// dial string.
	dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/", " "}
	for _, ch := range dangerous {
		if strings.Contains(l.Host, ch) {
			return fmt.Errorf("%s.host contains invalid character %q", name, ch)
		}
	}
	return nil
}
