// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package classifier

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/automute/internal/orientation"
	"github.com/relabs-tech/automute/internal/sensors"
)

// Kind selects the pocket detection strategy.
type Kind int

const (
	// Proximity treats an object touching the proximity sensor as enclosed.
	Proximity Kind = iota + 1
	// LightTilt requires darkness and a near-vertical, top-down pose.
	LightTilt
)

func (k Kind) String() string {
	switch k {
	case Proximity:
		return "proximity"
	case LightTilt:
		return "light_tilt"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proximity":
		return Proximity, nil
	case "light_tilt", "lighttilt", "light+tilt":
		return LightTilt, nil
	default:
		return 0, fmt.Errorf("unknown classifier kind %q (want proximity or light_tilt)", s)
	}
}

// Thresholds are the tunables for both strategies. The light+tilt values
// are empirical and kept as defaults only.
type Thresholds struct {
	ProximityCm float64
	Lux         float64
	GravityY    float64
	TiltLower   float64 // degrees, exclusive
	TiltUpper   float64 // degrees, exclusive
}

// DefaultThresholds returns the deployed defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProximityCm: 1.0,
		Lux:         10,
		GravityY:    -0.6,
		TiltLower:   75,
		TiltUpper:   100,
	}
}

// Input is the rolling window the classifier sees: the last value of
// each sensor type, or unknown if none has arrived yet.
type Input struct {
	Orientation     orientation.Estimate
	HaveOrientation bool
	Lux             float64
	HaveLux         bool
	DistanceCm      float64
	HaveDistance    bool
}

// SetLux records a light reading.
func (in *Input) SetLux(lux float64) {
	in.Lux = lux
	in.HaveLux = true
}

// SetDistance records a proximity reading.
func (in *Input) SetDistance(cm float64) {
	in.DistanceCm = cm
	in.HaveDistance = true
}

// SetOrientation records an orientation estimate.
func (in *Input) SetOrientation(est orientation.Estimate) {
	in.Orientation = est
	in.HaveOrientation = true
}

// Strategy is a configured classifier.
type Strategy struct {
	Kind       Kind
	Thresholds Thresholds
}

// New returns a strategy of the given kind.
func New(kind Kind, th Thresholds) Strategy {
	return Strategy{Kind: kind, Thresholds: th}
}

// Consumes reports whether readings of kind k feed this strategy.
func (s Strategy) Consumes(k sensors.Kind) bool {
	switch s.Kind {
	case Proximity:
		return k == sensors.KindProximity
	case LightTilt:
		return k == sensors.KindLight || k == sensors.KindAcceleration
	default:
		return false
	}
}

// Enclosed returns the pocket verdict. Missing inputs always yield false.
func (s Strategy) Enclosed(in Input) bool {
	switch s.Kind {
	case Proximity:
		return ProximityEnclosed(in, s.Thresholds)
	case LightTilt:
		return LightTiltEnclosed(in, s.Thresholds)
	default:
		return false
	}
}

// ProximityEnclosed: distance at or under the threshold.
func ProximityEnclosed(in Input, th Thresholds) bool {
	if !in.HaveDistance {
		return false
	}
	return in.DistanceCm <= th.ProximityCm
}

// LightTiltEnclosed: dark AND top pointing down AND inclination strictly
// inside (TiltLower, TiltUpper). All three must hold.
func LightTiltEnclosed(in Input, th Thresholds) bool {
	if !in.HaveLux || !in.HaveOrientation {
		return false
	}
	incl := in.Orientation.Inclination
	return in.Lux < th.Lux &&
		in.Orientation.Gravity[1] < th.GravityY &&
		incl > th.TiltLower && incl < th.TiltUpper
}
