// Package config loads the daemon configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration. Command-line flags override it.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	ModelsDir  string           `yaml:"models_dir"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       string           `yaml:"http"` // Empty disables the status server.
	StopButton StopButtonConfig `yaml:"stop_button"`
	Heartbeat  time.Duration    `yaml:"heartbeat"` // 0 disables.
	LogLevel   string           `yaml:"log_level"`
}

// SerialConfig selects the printer port. An empty Port means automatic discovery.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MQTTConfig configures the MQTT bridge. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// StopButtonConfig configures the physical stop button. A negative Pin disables it.
type StopButtonConfig struct {
	Pin      int           `yaml:"pin"`
	Debounce time.Duration `yaml:"debounce"`
	Poll     time.Duration `yaml:"poll"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Serial:    SerialConfig{Baud: 115200},
		ModelsDir: "models",
		MQTT: MQTTConfig{
			ClientID:    "gcode-serial",
			TopicPrefix: "printer",
		},
		HTTP: ":8080",
		StopButton: StopButtonConfig{
			Pin:      -1,
			Debounce: 250 * time.Millisecond,
			Poll:     50 * time.Millisecond,
		},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads a YAML file over the defaults. Environment variables referenced
// as ${VAR} or $VAR are expanded before parsing.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.ModelsDir == "" {
		return errors.New("config: models_dir is required")
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		return errors.New("config: mqtt.topic_prefix is required when a broker is set")
	}
	if c.StopButton.Pin >= 0 {
		if c.StopButton.Poll <= 0 {
			return fmt.Errorf("config: stop_button.poll must be positive, got %v", c.StopButton.Poll)
		}
		if c.StopButton.Debounce < 0 {
			return fmt.Errorf("config: stop_button.debounce must not be negative, got %v", c.StopButton.Debounce)
		}
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("config: heartbeat must not be negative, got %v", c.Heartbeat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("config: log_level: %w", err)
	}
	return lvl, nil
}
