package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 2000000, cfg.Serial.BaudRate)
	assert.Equal(t, "eeprom.bin", cfg.Storage.Path)
	assert.Equal(t, 18, cfg.Gate.Pin)
	assert.Equal(t, time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, float32(311), cfg.Mock.MainsAmplitude)
	assert.Equal(t, float32(50), cfg.Mock.MainsFrequency)
	assert.Equal(t, float32(500), cfg.Mock.RekvMax)
	assert.True(t, cfg.Mock.Realtime)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
serial:
  port: "/dev/ttyUSB3"

storage:
  path: "/var/lib/gomsr/eeprom.bin"

gate:
  pin: 26

telemetry:
  broker: "tcp://localhost:1883"
  interval: 5s

mock:
  mains_frequency: 60
  noise_level: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, "/var/lib/gomsr/eeprom.bin", cfg.Storage.Path)
	assert.Equal(t, 26, cfg.Gate.Pin)
	assert.Equal(t, "tcp://localhost:1883", cfg.Telemetry.Broker)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, float32(60), cfg.Mock.MainsFrequency)
	assert.Equal(t, 3, cfg.Mock.NoiseLevel)

	// Omitted fields fall back to defaults.
	assert.Equal(t, 2000000, cfg.Serial.BaudRate)
	assert.Equal(t, float32(311), cfg.Mock.MainsAmplitude)
	assert.Equal(t, float32(2.0), cfg.Mock.Resistance)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyACM7"
	cfg.Mock.Knob = 0.5
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM7", loaded.Serial.Port)
	assert.Equal(t, float32(0.5), loaded.Mock.Knob)
}
