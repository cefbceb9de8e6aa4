// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ringer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/relabs-tech/automute/internal/guard"
)

// ErrActuatorFailure wraps any error returned by the host when setting
// the ringer mode.
var ErrActuatorFailure = errors.New("ringer: actuator failure")

// Mode is the audio ringer mode.
type Mode int

const (
	Normal Mode = iota
	Vibrate
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Vibrate:
		return "vibrate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "normal" and "vibrate".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return Normal, nil
	case "vibrate":
		return Vibrate, nil
	default:
		return 0, fmt.Errorf("unknown ringer mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Actuator sets the device ringer. It is the only side effect of the
// engine.
type Actuator interface {
	SetRingerMode(Mode) error
}

// ModeReader is optionally implemented by an Actuator that can report
// the device's actual mode.
type ModeReader interface {
	CurrentMode() (Mode, error)
}

// Machine holds the current mode and decides transitions.
type Machine struct {
	current Mode
	stale   bool
}

// NewMachine starts in the given mode.
func NewMachine(initial Mode) *Machine {
	return &Machine{current: initial}
}

// Current returns the recorded mode.
func (m *Machine) Current() Mode { return m.current }

// Stale reports whether the last actuation failed, in which case the
// recorded mode may not match the device.
func (m *Machine) Stale() bool { return m.stale }

// Sync overwrites the recorded mode with the device's actual mode.
func (m *Machine) Sync(actual Mode) {
	m.current = actual
	m.stale = false
}

// Evaluate returns the mode to switch to, if any. A veto, or already
// being in the target mode, yields no change.
func (m *Machine) Evaluate(enclosed bool, veto guard.Veto) (Mode, bool) {
	if veto != guard.None {
		return m.current, false
	}
	target := Normal
	if enclosed {
		target = Vibrate
	}
	if target == m.current {
		return m.current, false
	}
	return target, true
}

// Apply calls the actuator once. The mode is recorded even on failure
// and the machine is marked stale so the caller re-reads the device.
func (m *Machine) Apply(target Mode, act Actuator) error {
	m.current = target
	if err := act.SetRingerMode(target); err != nil {
		m.stale = true
		return fmt.Errorf("%w: set %s: %w", ErrActuatorFailure, target, err)
	}
	m.stale = false
	return nil
}
