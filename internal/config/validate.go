// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/crslab/memtest/internal/program"
)

var modes = map[string]bool{
	"write-read": true,
	"write-only": true,
	"read-only":  true,
	"single":     true,
}

// Validate checks file-shape correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
//
// Run semantics (pattern length, binary pattern, pulse-width maximum) are
// re-checked by the orchestrator's Validating state; this stage only
// rejects values that cannot be represented on the wire at all.
func Validate(cfg *Config) error {
	m := &cfg.MemTest

	if m.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	if m.Baud < 0 {
		return fmt.Errorf("config: baud must be >= 0")
	}
	if m.MaxPulseWidthMs < 0 || m.MaxPulseWidthMs > 255 {
		return fmt.Errorf("config: max_pulse_width_ms must be within 0-255, got %d", m.MaxPulseWidthMs)
	}

	// ------------------------------------------------------------
	// RUN PARAMETERS (byte-valued on the wire)
	// ------------------------------------------------------------

	r := &m.Run

	if r.Mode != "" && !modes[r.Mode] {
		return fmt.Errorf("config: unknown run mode %q (write-read, write-only, read-only, single)", r.Mode)
	}

	if r.ArraySize < 1 || r.ArraySize > 3 {
		return fmt.Errorf("config: array_size must be 1, 2 or 3, got %d", r.ArraySize)
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"wordline", r.Wordline},
		{"write_pw_ms", r.WritePWMs},
		{"precharge_pw_ms", r.PrechargePWMs},
		{"ground_pw_ms", r.GroundPWMs},
		{"loop", r.Loop},
	} {
		if f.value < 0 || f.value > 255 {
			return fmt.Errorf("config: %s must be within 0-255, got %d", f.name, f.value)
		}
	}

	// ------------------------------------------------------------
	// SINGLE-PROGRAM MODE
	// ------------------------------------------------------------

	if r.Mode == "single" {
		if r.Single == nil {
			return fmt.Errorf("config: mode is single but run.single is not set")
		}
		if _, err := program.ParseKind(r.Single.Program); err != nil {
			return fmt.Errorf("config: run.single: %w", err)
		}
		for _, f := range []struct {
			name  string
			value int
		}{
			{"wordline", r.Single.Wordline},
			{"bitline", r.Single.Bitline},
			{"pattern", r.Single.Pattern},
		} {
			if f.value < 0 || f.value > 255 {
				return fmt.Errorf("config: run.single.%s must be within 0-255, got %d", f.name, f.value)
			}
		}
	}

	// ------------------------------------------------------------
	// STATUS MEMORY (OPT-IN)
	// ------------------------------------------------------------

	if m.StatusMemory != nil {
		if m.StatusMemory.Endpoint == "" {
			return fmt.Errorf("config: status_memory is set but endpoint is empty")
		}
	}

	if m.Monitor.Enabled && m.Monitor.MetricsPort <= 0 {
		return fmt.Errorf("config: monitor enabled but metrics_port is not set")
	}

	return nil
}
