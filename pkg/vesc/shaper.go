// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"math"
	"time"
)

// ShaperConfig holds the command shaping parameters.
// Values are clamped into range by the Shaper setters, never at use time.
type ShaperConfig struct {
	DeadbandFraction float64       // [0, 0.49]
	FilterAlpha      float64       // [0, 1], 1 disables filtering
	MaxSlewPerSecond float64       // >= 0, +Inf disables slew limiting
	SendInterval     time.Duration // minimum time between transmissions
	IdleZero         time.Duration // output forced to 0 when the target is older
}

// DefaultShaperConfig returns the shaping defaults used by the firmware bridge
func DefaultShaperConfig() ShaperConfig {
	return ShaperConfig{
		DeadbandFraction: DefaultDeadbandFraction,
		FilterAlpha:      DefaultFilterAlpha,
		MaxSlewPerSecond: DefaultMaxSlewPerSecond,
		SendInterval:     DefaultSendInterval,
		IdleZero:         DefaultIdleZero,
	}
}

// Shaper converts a user setpoint into a safe output value, one tick at a time:
// mode clamp, deadband, low-pass filter, slew limit, idle-zero.
// A Shaper is not safe for concurrent use; Link serializes access to it.
type Shaper struct {
	cfg ShaperConfig

	mode          Mode
	target        float64
	filtered      float64
	lastTargetSet time.Time
	lastTick      time.Time
}

// NewShaper creates a shaper whose first tick measures dt from now
func NewShaper(cfg ShaperConfig, now time.Time) *Shaper {
	s := &Shaper{lastTick: now}
	s.SetConfig(cfg)
	return s
}

// SetConfig replaces the configuration, clamping each value into range
func (s *Shaper) SetConfig(cfg ShaperConfig) {
	s.SetDeadbandFraction(cfg.DeadbandFraction)
	s.SetFilterAlpha(cfg.FilterAlpha)
	s.SetMaxSlewPerSecond(cfg.MaxSlewPerSecond)
	s.SetSendInterval(cfg.SendInterval)
	s.SetIdleZero(cfg.IdleZero)
}

// Config returns the effective (clamped) configuration
func (s *Shaper) Config() ShaperConfig {
	return s.cfg
}

// SetDeadbandFraction sets the deadband, clamped to [0, 0.49]
func (s *Shaper) SetDeadbandFraction(v float64) {
	s.cfg.DeadbandFraction = clamp(v, 0, MaxDeadbandFraction)
}

// SetFilterAlpha sets the low-pass coefficient, clamped to [0, 1]
func (s *Shaper) SetFilterAlpha(v float64) {
	s.cfg.FilterAlpha = clamp(v, 0, 1)
}

// SetMaxSlewPerSecond sets the slew limit, clamped to >= 0
func (s *Shaper) SetMaxSlewPerSecond(v float64) {
	s.cfg.MaxSlewPerSecond = clamp(v, 0, math.Inf(1))
}

// SetSendInterval sets the minimum transmission interval, clamped to >= 0
func (s *Shaper) SetSendInterval(d time.Duration) {
	s.cfg.SendInterval = max(d, 0)
}

// SetIdleZero sets the stale-target timeout, clamped to >= 0
func (s *Shaper) SetIdleZero(d time.Duration) {
	s.cfg.IdleZero = max(d, 0)
}

// SetMode selects the command mode. Changing mode resets the filtered state
// so a value in one unit is never carried into another.
func (s *Shaper) SetMode(mode Mode) {
	mode = mode.Clamp()
	if mode != s.mode {
		s.filtered = 0
	}
	s.mode = mode
}

// Mode returns the selected command mode
func (s *Shaper) Mode() Mode {
	return s.mode
}

// SetTarget records a new setpoint and when it was set.
// NaN is treated as 0 and infinities as the largest int32 magnitude.
func (s *Shaper) SetTarget(value float64, now time.Time) {
	switch {
	case math.IsNaN(value):
		value = 0
	case math.IsInf(value, 0):
		value = math.Copysign(math.MaxInt32, value)
	}
	s.target = value
	s.lastTargetSet = now
}

// Target returns the last setpoint
func (s *Shaper) Target() float64 {
	return s.target
}

// Output returns the current filtered value without advancing the shaper
func (s *Shaper) Output() float64 {
	return s.filtered
}

// Tick advances the shaper to now and returns the output value to transmit
func (s *Shaper) Tick(now time.Time) float64 {
	dt := now.Sub(s.lastTick).Seconds()
	if dt < 0 {
		dt = 0
	}
	s.lastTick = now

	in := s.applyDeadband(s.applyModeClamp(s.target))
	s.applySlew(s.applyFilter(in), dt)

	if s.isIdle(now) {
		s.filtered = 0
	}
	return s.filtered
}

// Reset zeroes the filtered state and restarts dt measurement at now
func (s *Shaper) Reset(now time.Time) {
	s.filtered = 0
	s.lastTick = now
}

func (s *Shaper) applyModeClamp(v float64) float64 {
	switch s.mode {
	case ModeBrake:
		if v < 0 {
			return 0
		}
	case ModeDuty:
		return clamp(v, -1, 1)
	}
	return v
}

func (s *Shaper) applyDeadband(v float64) float64 {
	if math.Abs(v) < s.cfg.DeadbandFraction {
		return 0
	}
	return v
}

// applyFilter returns the next low-pass value without committing it
func (s *Shaper) applyFilter(in float64) float64 {
	return s.cfg.FilterAlpha*in + (1-s.cfg.FilterAlpha)*s.filtered
}

// applySlew moves filtered toward next by at most MaxSlewPerSecond*dt
func (s *Shaper) applySlew(next, dt float64) {
	delta := next - s.filtered
	if !math.IsInf(s.cfg.MaxSlewPerSecond, 1) {
		maxDelta := s.cfg.MaxSlewPerSecond * dt
		delta = clamp(delta, -maxDelta, maxDelta)
	}
	s.filtered += delta
}

// isIdle reports whether the target is stale. A target that was never set
// counts as stale.
func (s *Shaper) isIdle(now time.Time) bool {
	if s.lastTargetSet.IsZero() {
		return true
	}
	return now.Sub(s.lastTargetSet) > s.cfg.IdleZero
}

// clamp limits v to [lo, hi]; NaN maps to lo
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
