// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/lifecycle"
	"github.com/relabs-tech/automute/internal/ringer"
	"github.com/relabs-tech/automute/internal/sensors"
	"github.com/relabs-tech/automute/internal/state"
)

// SimulationResult summarizes an offline run.
type SimulationResult struct {
	Readings    int
	Evaluations int
	Transitions []engine.Evaluation
	FinalMode   ringer.Mode
}

// simulatedRinger is an in-memory ringer that also reports its mode.
type simulatedRinger struct {
	mu   sync.Mutex
	mode ringer.Mode
}

func (r *simulatedRinger) SetRingerMode(m ringer.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
	return nil
}

func (r *simulatedRinger) CurrentMode() (ringer.Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode, nil
}

// RunSimulation replays readings through a fresh engine with a fixed
// host state and prints every evaluation to out.
func RunSimulation(settings engine.Settings, readings []sensors.Reading, host guard.State, out io.Writer) (SimulationResult, error) {
	var res SimulationResult
	res.Readings = len(readings)

	rng := &simulatedRinger{}
	eng := engine.New(guard.ProviderFunc(func() guard.State { return host }), rng,
		engine.ListenerFunc(func(ev engine.Evaluation) {
			res.Evaluations++
			marker := " "
			if ev.Changed {
				marker = "*"
				res.Transitions = append(res.Transitions, ev)
			}
			fmt.Fprintf(out, "%s t=%8.3fs %-12s enclosed=%-5t veto=%-19s %s -> %s\n",
				marker, float64(ev.Timestamp)/1e9, ev.Trigger, ev.Enclosed, ev.Veto, ev.From, ev.To)
		}))

	ctrl := lifecycle.New(eng, sensors.NewMockSource(readings, 0), &state.MemoryStore{}, settings, host.DisplayInteractive)
	if err := ctrl.Enable(); err != nil {
		return res, err
	}
	if err := ctrl.Disable(); err != nil {
		return res, err
	}

	res.FinalMode, _ = rng.CurrentMode()
	fmt.Fprintf(out, "readings=%d evaluations=%d transitions=%d final=%s\n",
		res.Readings, res.Evaluations, len(res.Transitions), res.FinalMode)
	return res, nil
}
