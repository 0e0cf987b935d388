package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logs    LogsConfig    `yaml:"logs"`
	Monitor MonitorConfig `yaml:"monitor"`
	Stream  StreamConfig  `yaml:"stream"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogsConfig struct {
	// Dir holds one session_<id>.log file per registered session.
	Dir string `yaml:"dir"`
}

type MonitorConfig struct {
	DefaultInterval time.Duration `yaml:"default_interval"`
	// StopGrace bounds how long Stop waits for the sampling loop to exit.
	StopGrace time.Duration `yaml:"stop_grace"`
}

type StreamConfig struct {
	PollQuantum        time.Duration `yaml:"poll_quantum"`
	DefaultIdleTimeout time.Duration `yaml:"default_idle_timeout"`
	MinIdleTimeout     time.Duration `yaml:"min_idle_timeout"`
	MaxIdleTimeout     time.Duration `yaml:"max_idle_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 5 * time.Second,
		},
		Logs: LogsConfig{
			Dir: "logs",
		},
		Monitor: MonitorConfig{
			DefaultInterval: 2 * time.Second,
			StopGrace:       2 * time.Second,
		},
		Stream: StreamConfig{
			PollQuantum:        100 * time.Millisecond,
			DefaultIdleTimeout: 300 * time.Second,
			MinIdleTimeout:     10 * time.Second,
			MaxIdleTimeout:     3600 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads the config file if it exists and falls back to the
// built-in defaults when it does not. Parse errors are still reported.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ValidateIdleTimeout checks a caller-supplied stream idle timeout against
// the configured bounds. Zero selects the default; anything outside the
// bounds is rejected rather than clamped.
func (c *Config) ValidateIdleTimeout(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return c.Stream.DefaultIdleTimeout, nil
	}
	if d < c.Stream.MinIdleTimeout || d > c.Stream.MaxIdleTimeout {
		return 0, fmt.Errorf("idle timeout %s outside allowed range [%s, %s]",
			d, c.Stream.MinIdleTimeout, c.Stream.MaxIdleTimeout)
	}
	return d, nil
}
