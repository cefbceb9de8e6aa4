package orientation

import (
	"errors"
	"math"
)

// ErrDegenerateInput is returned when an accelerometer vector has no
// usable direction (zero magnitude or non-finite components).
var ErrDegenerateInput = errors.New("orientation: degenerate acceleration vector")

// Estimate is the device orientation derived from one accelerometer sample.
type Estimate struct {
	// Gravity is the unit vector along the measured acceleration.
	Gravity [3]float64 `json:"gravity"`
	// Inclination is the angle between Gravity and the device z axis,
	// in whole degrees, 0..180.
	Inclination float64 `json:"inclination"`
}

// Normalize computes the gravity unit vector and inclination from raw
// accelerometer values (in any unit).
//
//	gravity     = v / |v|
//	inclination = round(acos(gravity.z) in degrees)
func Normalize(x, y, z float64) (Estimate, error) {
	norm := math.Sqrt(x*x + y*y + z*z)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Estimate{}, ErrDegenerateInput
	}

	g := [3]float64{x / norm, y / norm, z / norm}

	// Rounding can push |gz| a hair past 1.
	gz := math.Max(-1, math.Min(1, g[2]))
	inclination := math.Round(math.Acos(gz) * 180.0 / math.Pi)

	return Estimate{Gravity: g, Inclination: inclination}, nil
}

// Tracker keeps the last good estimate so a degenerate sample never
// replaces it.
type Tracker struct {
	last Estimate
}

// Update normalizes a new sample. On ErrDegenerateInput the previous
// estimate is kept and returned alongside the error.
func (t *Tracker) Update(x, y, z float64) (Estimate, error) {
	est, err := Normalize(x, y, z)
	if err != nil {
		return t.last, err
	}
	t.last = est
	return est, nil
}
