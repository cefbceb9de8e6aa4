// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"
	"time"
)

// MockSource replays a fixed list of readings. With a zero pace all
// readings are delivered synchronously inside Subscribe.
type MockSource struct {
	readings []Reading
	pace     time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewMockSource replays readings, sleeping pace between them.
func NewMockSource(readings []Reading, pace time.Duration) *MockSource {
	return &MockSource{readings: readings, pace: pace}
}

func (m *MockSource) Subscribe(handler func(Reading)) error {
	if m.pace == 0 {
		for _, r := range m.readings {
			handler(r)
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.pace)
		defer ticker.Stop()
		for _, r := range m.readings {
			select {
			case <-stop:
				return
			case <-ticker.C:
				handler(r)
			}
		}
	}(m.stop, m.done)
	return nil
}

func (m *MockSource) Unsubscribe() error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// PocketCycle builds a light+accelerometer script that alternates
// between lying face up on a lit table and sitting upside down in a dark
// pocket. Each phase lasts phaseLen samples, one every step.
func PocketCycle(step time.Duration, phaseLen, phases int) []Reading {
	var out []Reading
	ts := int64(0)
	for p := 0; p < phases; p++ {
		pocket := p%2 == 1
		for i := 0; i < phaseLen; i++ {
			if pocket {
				out = append(out,
					Light(ts, 2),
					Acceleration(ts+int64(step/2), 0.3, -9.6, 1.2))
			} else {
				out = append(out,
					Light(ts, 320),
					Acceleration(ts+int64(step/2), 0.1, 0.2, 9.8))
			}
			ts += int64(step)
		}
	}
	return out
}
