// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
)

// TypeSENS is the proprietary sentence type spoken by the serial sensor
// bridge:
//
//	$PSENS,P,<ts_ns>,<distance_cm>*hh
//	$PSENS,L,<ts_ns>,<lux>*hh
//	$PSENS,A,<ts_ns>,<x>,<y>,<z>*hh
const TypeSENS = "SENS"

// SENS is a parsed $PSENS sentence.
type SENS struct {
	nmea.BaseSentence
	Reading Reading
}

var registerOnce sync.Once

// registerSENS installs the $PSENS parser with go-nmea.
func registerSENS() {
	registerOnce.Do(func() {
		if err := nmea.RegisterParser(TypeSENS, parseSENS); err != nil {
			panic(fmt.Sprintf("sensors: register $PSENS parser: %v", err))
		}
	})
}

func parseSENS(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeSENS)

	tag := p.String(0, "kind")
	ts := p.Int64(1, "timestamp")

	var r Reading
	switch tag {
	case "P":
		r = Proximity(ts, p.Float64(2, "distance"))
	case "L":
		r = Light(ts, p.Float64(2, "lux"))
	case "A":
		r = Acceleration(ts, p.Float64(2, "x"), p.Float64(3, "y"), p.Float64(4, "z"))
	default:
		if p.Err() == nil {
			return nil, fmt.Errorf("nmea: PSENS unknown kind %q", tag)
		}
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return SENS{BaseSentence: s, Reading: r}, nil
}

// ParseSentence parses one bridge line into a Reading.
func ParseSentence(line string) (Reading, error) {
	registerSENS()

	sentence, err := nmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return Reading{}, err
	}
	sens, ok := sentence.(SENS)
	if !ok {
		return Reading{}, fmt.Errorf("nmea: unexpected sentence %s", sentence.Prefix())
	}
	return sens.Reading, nil
}

// FormatSentence encodes a Reading as a $PSENS line with checksum.
func FormatSentence(r Reading) string {
	var body string
	switch r.Kind {
	case KindProximity:
		body = fmt.Sprintf("PSENS,P,%d,%g", r.Timestamp, r.Distance)
	case KindLight:
		body = fmt.Sprintf("PSENS,L,%d,%g", r.Timestamp, r.Lux)
	case KindAcceleration:
		body = fmt.Sprintf("PSENS,A,%d,%g,%g,%g", r.Timestamp, r.X, r.Y, r.Z)
	default:
		return ""
	}
	return fmt.Sprintf("$%s*%s", body, nmea.Checksum(body))
}
