// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MemTest MemTestConfig `yaml:"memtest"`
}

type MemTestConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	MaxPulseWidthMs    int `yaml:"max_pulse_width_ms"`
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
	SettleMs           int `yaml:"settle_ms"`

	Run    RunConfig    `yaml:"run"`
	Output OutputConfig `yaml:"output"`

	// Run-status memory block (optional, opt-in)
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`

	Monitor MonitorConfig `yaml:"monitor"`
	Log     LogConfig     `yaml:"log"`
}

// ---- RUN ----

type RunConfig struct {
	Mode      string `yaml:"mode"`
	Wordline  int    `yaml:"wordline"`
	ArraySize int    `yaml:"array_size"`
	Pattern   string `yaml:"pattern"`

	WritePWMs     int `yaml:"write_pw_ms"`
	PrechargePWMs int `yaml:"precharge_pw_ms"`
	GroundPWMs    int `yaml:"ground_pw_ms"`
	Loop          int `yaml:"loop"`

	// Single-program mode only.
	Single *SingleConfig `yaml:"single"`
}

type SingleConfig struct {
	Program  string `yaml:"program"`
	Wordline int    `yaml:"wordline"`
	Bitline  int    `yaml:"bitline"`
	Pattern  int    `yaml:"pattern"`
}

// ---- OUTPUT ----

type OutputConfig struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Slot      uint16 `yaml:"slot"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and decodes a config file. No validation happens here.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &cfg, nil
}
