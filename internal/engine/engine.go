// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package engine runs the pocket detection pipeline: debounce gate,
// classifier, context guard and ringer state machine, inside a single
// critical section per sensor event.
package engine

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/automute/internal/classifier"
	"github.com/relabs-tech/automute/internal/debounce"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/orientation"
	"github.com/relabs-tech/automute/internal/ringer"
	"github.com/relabs-tech/automute/internal/sensors"
)

// Settings configure a session.
type Settings struct {
	Classifier       classifier.Kind
	Thresholds       classifier.Thresholds
	DebounceInterval time.Duration
}

// DefaultSettings returns light+tilt with the deployed thresholds and a
// 300ms debounce.
func DefaultSettings() Settings {
	return Settings{
		Classifier:       classifier.LightTilt,
		Thresholds:       classifier.DefaultThresholds(),
		DebounceInterval: 300 * time.Millisecond,
	}
}

// Evaluation describes one debounce-accepted pass through the pipeline.
type Evaluation struct {
	SessionID  string      `json:"session_id"`
	Timestamp  int64       `json:"ts"`
	Trigger    string      `json:"trigger"`
	Classifier string      `json:"classifier"`
	Enclosed   bool        `json:"enclosed"`
	Veto       string      `json:"veto"`
	From       ringer.Mode `json:"from"`
	To         ringer.Mode `json:"to"`
	Changed    bool        `json:"changed"`
	Error      string      `json:"error,omitempty"`
	Err        error       `json:"-"`
}

// Listener receives every evaluation after the critical section is left.
// Listeners must not call back into the engine.
type Listener interface {
	OnEvaluation(Evaluation)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Evaluation)

func (f ListenerFunc) OnEvaluation(ev Evaluation) { f(ev) }

// Stats are per-session counters.
type Stats struct {
	Received       uint64 `json:"received"`
	Ignored        uint64 `json:"ignored"`
	Degenerate     uint64 `json:"degenerate"`
	Dropped        uint64 `json:"dropped"`
	Evaluations    uint64 `json:"evaluations"`
	Vetoes         uint64 `json:"vetoes"`
	Transitions    uint64 `json:"transitions"`
	ActuatorErrors uint64 `json:"actuator_errors"`
}

// Session is the state owned between Start and Stop.
type Session struct {
	id        string
	startedAt time.Time
	strategy  classifier.Strategy
	gate      *debounce.Gate
	tracker   orientation.Tracker
	input     classifier.Input
	machine   *ringer.Machine
	stats     Stats
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Strategy returns the session classifier.
func (s *Session) Strategy() classifier.Strategy { return s.strategy }

// Engine owns at most one Session at a time.
type Engine struct {
	mu        sync.Mutex
	guard     guard.Provider
	actuator  ringer.Actuator
	listeners []Listener
	session   *Session
}

// New returns a stopped engine.
func New(g guard.Provider, act ringer.Actuator, listeners ...Listener) *Engine {
	return &Engine{
		guard:     g,
		actuator:  act,
		listeners: listeners,
	}
}

// AddListener registers l for future evaluations.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Start creates a session. If one is already running it is returned
// unchanged and cfg is ignored.
func (e *Engine) Start(cfg Settings) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return e.session
	}

	s := &Session{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		strategy:  classifier.New(cfg.Classifier, cfg.Thresholds),
		gate:      debounce.NewGate(cfg.DebounceInterval),
		machine:   ringer.NewMachine(e.readMode(ringer.Normal)),
	}
	e.session = s

	log.Printf("engine: session %s started (classifier=%s debounce=%s mode=%s)",
		s.id, s.strategy.Kind, cfg.DebounceInterval, s.machine.Current())
	return s
}

// Stop ends the current session. An evaluation already in progress
// finishes first. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return
	}
	s := e.session
	e.session = nil
	log.Printf("engine: session %s stopped (evaluations=%d transitions=%d)",
		s.id, s.stats.Evaluations, s.stats.Transitions)
}

// Running reports whether a session exists.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// OnSensorEvent feeds one reading through the pipeline. The only error
// returned wraps ringer.ErrActuatorFailure.
func (e *Engine) OnSensorEvent(r sensors.Reading) error {
	e.mu.Lock()

	s := e.session
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	s.stats.Received++

	if !s.strategy.Consumes(r.Kind) {
		s.stats.Ignored++
		e.mu.Unlock()
		return nil
	}

	switch r.Kind {
	case sensors.KindProximity:
		s.input.SetDistance(r.Distance)
	case sensors.KindLight:
		s.input.SetLux(r.Lux)
	case sensors.KindAcceleration:
		est, err := s.tracker.Update(r.X, r.Y, r.Z)
		if errors.Is(err, orientation.ErrDegenerateInput) {
			s.stats.Degenerate++
			e.mu.Unlock()
			return nil
		}
		s.input.SetOrientation(est)
	}

	if !s.gate.Accept(r.Timestamp) {
		s.stats.Dropped++
		e.mu.Unlock()
		return nil
	}

	ev := e.evaluate(s, r)
	listeners := e.listeners
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnEvaluation(ev)
	}
	return ev.Err
}

// evaluate runs classifier, guard and state machine. Caller holds e.mu.
func (e *Engine) evaluate(s *Session, r sensors.Reading) Evaluation {
	s.stats.Evaluations++

	if s.machine.Stale() {
		s.machine.Sync(e.readMode(s.machine.Current()))
	}

	enclosed := s.strategy.Enclosed(s.input)
	veto := guard.Check(e.guard.QueryGuardState())
	if veto != guard.None {
		s.stats.Vetoes++
	}

	from := s.machine.Current()
	ev := Evaluation{
		SessionID:  s.id,
		Timestamp:  r.Timestamp,
		Trigger:    r.Kind.String(),
		Classifier: s.strategy.Kind.String(),
		Enclosed:   enclosed,
		Veto:       veto.String(),
		From:       from,
		To:         from,
	}

	target, change := s.machine.Evaluate(enclosed, veto)
	if !change {
		return ev
	}

	ev.To = target
	ev.Changed = true
	s.stats.Transitions++

	if err := s.machine.Apply(target, e.actuator); err != nil {
		s.stats.ActuatorErrors++
		ev.Err = err
		ev.Error = err.Error()
		log.Printf("engine: %v", err)
		return ev
	}

	log.Printf("engine: ringer %s -> %s (enclosed=%t, %s @%d)", from, target, enclosed, r.Kind, r.Timestamp)
	return ev
}

// readMode asks the host for the actual mode when it can tell us.
// Caller holds e.mu.
func (e *Engine) readMode(fallback ringer.Mode) ringer.Mode {
	mr, ok := e.actuator.(ringer.ModeReader)
	if !ok {
		return fallback
	}
	m, err := mr.CurrentMode()
	if err != nil {
		log.Printf("engine: read ringer mode: %v (assuming %s)", err, fallback)
		return fallback
	}
	return m
}

// Snapshot is a read-only view of the engine for status surfaces.
type Snapshot struct {
	Running    bool             `json:"running"`
	SessionID  string           `json:"session_id,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	Classifier string           `json:"classifier,omitempty"`
	Mode       ringer.Mode      `json:"mode"`
	Stale      bool             `json:"stale"`
	Input      classifier.Input `json:"input"`
	Stats      Stats            `json:"stats"`
}

// Snapshot returns the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Running:    true,
		SessionID:  s.id,
		StartedAt:  s.startedAt,
		Classifier: s.strategy.Kind.String(),
		Mode:       s.machine.Current(),
		Stale:      s.machine.Stale(),
		Input:      s.input,
		Stats:      s.stats,
	}
}
