// internal/config/normalize.go
package config

import "github.com/crslab/memtest/internal/program"

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	m := &cfg.MemTest

	if m.Baud == 0 {
		m.Baud = program.DefaultBaud
	}
	if m.MaxPulseWidthMs == 0 {
		m.MaxPulseWidthMs = program.DefaultMaxPulseWidth
	}
	if m.HandshakeTimeoutMs == 0 {
		m.HandshakeTimeoutMs = 5000
	}
	if m.ReadTimeoutMs == 0 {
		m.ReadTimeoutMs = 2000
	}
	if m.SettleMs == 0 {
		m.SettleMs = 500
	}

	r := &m.Run
	if r.Mode == "" {
		r.Mode = "write-read"
	}
	if r.WritePWMs == 0 {
		r.WritePWMs = program.DefaultReadWriteMs
	}
	if r.PrechargePWMs == 0 {
		r.PrechargePWMs = program.DefaultFormMs
	}
	if r.GroundPWMs == 0 {
		r.GroundPWMs = program.DefaultGroundMs
	}
	if r.Loop == 0 {
		r.Loop = program.DefaultLoopCount
	}

	if m.Output.Dir == "" {
		m.Output.Dir = "results"
	}
	if m.Output.Name == "" {
		m.Output.Name = "run"
	}

	if m.StatusMemory != nil && m.StatusMemory.TimeoutMs == 0 {
		m.StatusMemory.TimeoutMs = 2000
	}

	if m.Log.Level == "" {
		m.Log.Level = "info"
	}
	if m.Log.Format == "" {
		m.Log.Format = "text"
	}
}
