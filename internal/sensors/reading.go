// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "fmt"

// Kind identifies which sensor produced a Reading.
type Kind int

const (
	KindProximity Kind = iota + 1
	KindLight
	KindAcceleration
)

func (k Kind) String() string {
	switch k {
	case KindProximity:
		return "proximity"
	case KindLight:
		return "light"
	case KindAcceleration:
		return "acceleration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reading is a single sensor event. Only the fields that belong to Kind
// are meaningful:
//
//	KindProximity    -> Distance (cm)
//	KindLight        -> Lux
//	KindAcceleration -> X, Y, Z (any unit, only the direction is used)
//
// Timestamp is monotonic nanoseconds since an arbitrary epoch, as
// reported by the sensor (not the arrival time).
type Reading struct {
	Kind      Kind    `json:"kind"`
	Timestamp int64   `json:"ts"`
	Distance  float64 `json:"distance_cm,omitempty"`
	Lux       float64 `json:"lux,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Z         float64 `json:"z,omitempty"`
}

// Proximity builds a proximity reading.
func Proximity(ts int64, distanceCm float64) Reading {
	return Reading{Kind: KindProximity, Timestamp: ts, Distance: distanceCm}
}

// Light builds an ambient light reading.
func Light(ts int64, lux float64) Reading {
	return Reading{Kind: KindLight, Timestamp: ts, Lux: lux}
}

// Acceleration builds an accelerometer reading.
func Acceleration(ts int64, x, y, z float64) Reading {
	return Reading{Kind: KindAcceleration, Timestamp: ts, X: x, Y: y, Z: z}
}

func (r Reading) String() string {
	switch r.Kind {
	case KindProximity:
		return fmt.Sprintf("proximity %.2fcm @%d", r.Distance, r.Timestamp)
	case KindLight:
		return fmt.Sprintf("light %.1flux @%d", r.Lux, r.Timestamp)
	case KindAcceleration:
		return fmt.Sprintf("accel (%.3f, %.3f, %.3f) @%d", r.X, r.Y, r.Z, r.Timestamp)
	default:
		return fmt.Sprintf("%s @%d", r.Kind, r.Timestamp)
	}
}

// Source is anything that can deliver readings to a handler. Readings of
// one kind arrive in timestamp order; different kinds may interleave.
type Source interface {
	Subscribe(handler func(Reading)) error
	Unsubscribe() error
}
