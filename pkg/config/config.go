// Package config holds the host-side application configuration. Motor
// and regulator parameters live in the emulated EEPROM, not here: this
// file covers the concerns of the host process around the core.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Storage   StorageConfig   `yaml:"storage"`
	Gate      GateConfig      `yaml:"gate"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Mock      MockConfig      `yaml:"mock"`
}

// SerialConfig contains the sampling MCU port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// StorageConfig locates the emulated EEPROM file.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GateConfig contains the triac gate output configuration.
type GateConfig struct {
	Pin int `yaml:"pin"`
}

// TelemetryConfig contains the MQTT status publishing configuration.
// An empty broker disables telemetry.
type TelemetryConfig struct {
	Broker   string        `yaml:"broker"`
	Interval time.Duration `yaml:"interval"`
}

// MockConfig parameterises the simulated mains+motor plant used when no
// hardware is attached.
type MockConfig struct {
	MainsAmplitude float32 `yaml:"mains_amplitude"` // V, peak
	MainsFrequency float32 `yaml:"mains_frequency"` // Hz
	Resistance     float32 `yaml:"resistance"`      // Ohm, motor winding
	Inductance     float32 `yaml:"inductance"`      // H
	RekvMax        float32 `yaml:"rekv_max"`        // Ohm at full speed
	MotorGain      float32 `yaml:"motor_gain"`      // speed per ampere
	TimeConstant   float32 `yaml:"time_constant"`   // s, mechanical
	NoiseLevel     int     `yaml:"noise_level"`     // ADC LSBs
	Knob           float32 `yaml:"knob"`            // initial position
	Realtime       bool    `yaml:"realtime"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 2000000,
		},
		Storage: StorageConfig{
			Path: "eeprom.bin",
		},
		Gate: GateConfig{
			Pin: 18,
		},
		Telemetry: TelemetryConfig{
			Broker:   "",
			Interval: time.Second,
		},
		Mock: MockConfig{
			MainsAmplitude: 311,
			MainsFrequency: 50,
			Resistance:     2.0,
			Inductance:     0.02,
			RekvMax:        500,
			MotorGain:      2.54,
			TimeConstant:   0.3,
			NoiseLevel:     0,
			Knob:           0,
			Realtime:       true,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist
// or fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}

	if c.Gate.Pin == 0 {
		c.Gate.Pin = def.Gate.Pin
	}

	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = def.Telemetry.Interval
	}

	if c.Mock.MainsAmplitude == 0 {
		c.Mock.MainsAmplitude = def.Mock.MainsAmplitude
	}
	if c.Mock.MainsFrequency == 0 {
		c.Mock.MainsFrequency = def.Mock.MainsFrequency
	}
	if c.Mock.Resistance == 0 {
		c.Mock.Resistance = def.Mock.Resistance
	}
	if c.Mock.Inductance == 0 {
		c.Mock.Inductance = def.Mock.Inductance
	}
	if c.Mock.RekvMax == 0 {
		c.Mock.RekvMax = def.Mock.RekvMax
	}
	if c.Mock.MotorGain == 0 {
		c.Mock.MotorGain = def.Mock.MotorGain
	}
	if c.Mock.TimeConstant == 0 {
		c.Mock.TimeConstant = def.Mock.TimeConstant
	}
}
