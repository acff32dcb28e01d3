// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"math"
	"testing"
	"time"
)

var shaperEpoch = time.Unix(1_700_000_000, 0)

// ms returns the epoch offset by n milliseconds
func ms(n int) time.Time {
	return shaperEpoch.Add(time.Duration(n) * time.Millisecond)
}

// passthroughConfig disables every stage except idle-zero
func passthroughConfig() ShaperConfig {
	return ShaperConfig{
		DeadbandFraction: 0,
		FilterAlpha:      1,
		MaxSlewPerSecond: math.Inf(1),
		SendInterval:     50 * time.Millisecond,
		IdleZero:         time.Hour,
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Pipeline Tests
// ============================================================

func TestShaper_Idempotence(t *testing.T) {
	for _, slew := range []float64{math.Inf(1), 1e9} {
		cfg := passthroughConfig()
		cfg.MaxSlewPerSecond = slew
		s := NewShaper(cfg, ms(0))

		s.SetTarget(5, ms(0))
		if out := s.Tick(ms(10)); out != 5 {
			t.Errorf("slew %v: output %v, expected 5", slew, out)
		}
	}
}

func TestShaper_Deadband(t *testing.T) {
	tests := []struct {
		target   float64
		expected float64
	}{
		{0.05, 0},
		{-0.09, 0},
		{0.0999, 0},
		{0.1, 0.1},
		{-0.5, -0.5},
	}

	for _, tt := range tests {
		cfg := passthroughConfig()
		cfg.DeadbandFraction = 0.1
		s := NewShaper(cfg, ms(0))

		s.SetTarget(tt.target, ms(0))
		if out := s.Tick(ms(10)); out != tt.expected {
			t.Errorf("target %v: output %v, expected %v", tt.target, out, tt.expected)
		}
	}
}

func TestShaper_IdleZero(t *testing.T) {
	cfg := passthroughConfig()
	cfg.IdleZero = 150 * time.Millisecond
	s := NewShaper(cfg, ms(0))

	s.SetTarget(1.0, ms(0))
	if out := s.Tick(ms(50)); out != 1 {
		t.Fatalf("output %v, expected 1", out)
	}
	if out := s.Tick(ms(150)); out != 1 {
		t.Errorf("output at exactly idleZero %v, expected 1", out)
	}
	if out := s.Tick(ms(200)); out != 0 {
		t.Errorf("stale output %v, expected 0", out)
	}
	if s.Output() != 0 {
		t.Errorf("filtered state %v, expected 0", s.Output())
	}

	// Refreshing the target resumes output
	s.SetTarget(1.0, ms(300))
	if out := s.Tick(ms(310)); out != 1 {
		t.Errorf("output after refresh %v, expected 1", out)
	}
}

func TestShaper_NeverSetIsIdle(t *testing.T) {
	s := NewShaper(passthroughConfig(), ms(0))
	if out := s.Tick(ms(10)); out != 0 {
		t.Errorf("output %v with no target, expected 0", out)
	}
}

func TestShaper_SlewLimit(t *testing.T) {
	cfg := passthroughConfig()
	cfg.MaxSlewPerSecond = 4
	s := NewShaper(cfg, ms(0))

	s.SetTarget(10, ms(0))
	steps := []struct {
		at       int
		expected float64
	}{
		{100, 0.4},
		{200, 0.8},
		{450, 1.8},
	}
	for _, step := range steps {
		if out := s.Tick(ms(step.at)); !approxEqual(out, step.expected) {
			t.Errorf("t=%dms: output %v, expected %v", step.at, out, step.expected)
		}
	}

	s.SetTarget(-10, ms(450))
	if out := s.Tick(ms(550)); !approxEqual(out, 1.4) {
		t.Errorf("reversal: output %v, expected 1.4", out)
	}
}

func TestShaper_SlewZeroFreezes(t *testing.T) {
	cfg := passthroughConfig()
	cfg.MaxSlewPerSecond = 0
	s := NewShaper(cfg, ms(0))

	s.SetTarget(3, ms(0))
	if out := s.Tick(ms(1000)); out != 0 {
		t.Errorf("output %v with zero slew, expected 0", out)
	}
}

func TestShaper_NegativeDt(t *testing.T) {
	cfg := passthroughConfig()
	cfg.MaxSlewPerSecond = 4
	s := NewShaper(cfg, ms(1000))

	s.SetTarget(10, ms(1000))
	if out := s.Tick(ms(0)); out != 0 {
		t.Errorf("output %v after backwards clock, expected 0", out)
	}
	if out := s.Tick(ms(100)); !approxEqual(out, 0.4) {
		t.Errorf("output %v, expected 0.4", out)
	}
}

func TestShaper_Filter(t *testing.T) {
	cfg := passthroughConfig()
	cfg.FilterAlpha = 0.2
	s := NewShaper(cfg, ms(0))

	s.SetTarget(10, ms(0))
	if out := s.Tick(ms(50)); !approxEqual(out, 2) {
		t.Errorf("first tick %v, expected 2", out)
	}
	if out := s.Tick(ms(100)); !approxEqual(out, 3.6) {
		t.Errorf("second tick %v, expected 3.6", out)
	}
}

func TestShaper_AlphaZeroHolds(t *testing.T) {
	cfg := passthroughConfig()
	cfg.FilterAlpha = 0
	s := NewShaper(cfg, ms(0))

	s.SetTarget(10, ms(0))
	for i := 1; i <= 5; i++ {
		if out := s.Tick(ms(i * 50)); out != 0 {
			t.Fatalf("tick %d: output %v, expected 0", i, out)
		}
	}
}

// ============================================================
// Mode Tests
// ============================================================

func TestShaper_ModeClamp(t *testing.T) {
	tests := []struct {
		mode     Mode
		target   float64
		expected float64
	}{
		{ModeCurrent, -5, -5},
		{ModeBrake, -5, 0},
		{ModeBrake, 5, 5},
		{ModeDuty, 2, 1},
		{ModeDuty, -3, -1},
		{ModeDuty, 0.5, 0.5},
		{ModeRPM, -4000, -4000},
	}

	for _, tt := range tests {
		s := NewShaper(passthroughConfig(), ms(0))
		s.SetMode(tt.mode)
		s.SetTarget(tt.target, ms(0))
		if out := s.Tick(ms(10)); out != tt.expected {
			t.Errorf("%v target %v: output %v, expected %v", tt.mode, tt.target, out, tt.expected)
		}
	}
}

func TestShaper_ModeChangeResetsFilter(t *testing.T) {
	s := NewShaper(passthroughConfig(), ms(0))
	s.SetTarget(5, ms(0))
	s.Tick(ms(10))

	s.SetMode(ModeCurrent)
	if s.Output() != 5 {
		t.Errorf("same mode should keep state, output %v", s.Output())
	}

	s.SetMode(ModeRPM)
	if s.Output() != 0 {
		t.Errorf("mode change should reset state, output %v", s.Output())
	}
	if s.Mode() != ModeRPM {
		t.Errorf("mode %v, expected rpm", s.Mode())
	}

	s.SetMode(Mode(17))
	if s.Mode() != ModeRPM {
		t.Errorf("out of range mode should clamp, got %v", s.Mode())
	}
}

// ============================================================
// Configuration Tests
// ============================================================

func TestShaper_ConfigClamping(t *testing.T) {
	s := NewShaper(ShaperConfig{
		DeadbandFraction: 0.9,
		FilterAlpha:      2,
		MaxSlewPerSecond: -5,
		SendInterval:     -time.Second,
		IdleZero:         -time.Second,
	}, ms(0))

	cfg := s.Config()
	if cfg.DeadbandFraction != MaxDeadbandFraction {
		t.Errorf("deadband %v, expected %v", cfg.DeadbandFraction, MaxDeadbandFraction)
	}
	if cfg.FilterAlpha != 1 {
		t.Errorf("alpha %v, expected 1", cfg.FilterAlpha)
	}
	if cfg.MaxSlewPerSecond != 0 {
		t.Errorf("slew %v, expected 0", cfg.MaxSlewPerSecond)
	}
	if cfg.SendInterval != 0 || cfg.IdleZero != 0 {
		t.Errorf("durations %v/%v, expected 0", cfg.SendInterval, cfg.IdleZero)
	}

	s.SetFilterAlpha(math.NaN())
	s.SetDeadbandFraction(-1)
	if s.Config().FilterAlpha != 0 || s.Config().DeadbandFraction != 0 {
		t.Errorf("NaN/negative should clamp low: %+v", s.Config())
	}
}

func TestShaper_Defaults(t *testing.T) {
	cfg := DefaultShaperConfig()
	if cfg.DeadbandFraction != 0.06 || cfg.FilterAlpha != 0.20 || cfg.MaxSlewPerSecond != 4.0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SendInterval != 50*time.Millisecond || cfg.IdleZero != 150*time.Millisecond {
		t.Errorf("unexpected default intervals: %+v", cfg)
	}
}

func TestShaper_TargetSanitizing(t *testing.T) {
	s := NewShaper(passthroughConfig(), ms(0))

	s.SetTarget(math.NaN(), ms(0))
	if s.Target() != 0 {
		t.Errorf("NaN target stored as %v", s.Target())
	}
	s.SetTarget(math.Inf(-1), ms(0))
	if s.Target() != -math.MaxInt32 {
		t.Errorf("-Inf target stored as %v", s.Target())
	}
}

func TestShaper_Reset(t *testing.T) {
	cfg := passthroughConfig()
	cfg.MaxSlewPerSecond = 4
	s := NewShaper(cfg, ms(0))
	s.SetTarget(10, ms(0))
	s.Tick(ms(100))

	s.Reset(ms(1000))
	if s.Output() != 0 {
		t.Errorf("output %v after reset", s.Output())
	}
	// dt measured from the reset time
	if out := s.Tick(ms(1100)); !approxEqual(out, 0.4) {
		t.Errorf("output %v, expected 0.4", out)
	}
}
