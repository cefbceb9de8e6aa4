// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package host bridges the engine to a phone-side agent over MQTT: guard
// snapshots, display events and on/off commands come in; ringer mode
// changes and evaluations go out.
package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/ringer"
)

// ErrModeUnknown is returned by CurrentMode before the agent has
// reported the ringer mode.
var ErrModeUnknown = errors.New("host: ringer mode not reported yet")

// Controller receives display and on/off events.
type Controller interface {
	Enable() error
	Disable() error
	DisplayChanged(interactive bool) error
}

// Topics used by the agent.
type Topics struct {
	Guard       string
	Display     string
	Command     string
	RingerSet   string
	RingerState string
	Evaluations string
}

type displayPayload struct {
	Interactive bool `json:"interactive"`
}

type modePayload struct {
	Mode ringer.Mode `json:"mode"`
}

// MQTTHost implements guard.Provider, ringer.Actuator and
// ringer.ModeReader on top of an MQTT connection.
type MQTTHost struct {
	client  mqtt.Client
	topics  Topics
	timeout time.Duration

	mu        sync.RWMutex
	guard     guard.State
	haveGuard bool
	mode      ringer.Mode
	haveMode  bool

	// Controller calls run here, never on the MQTT router.
	events   chan func()
	stop     chan struct{}
	done     chan struct{}
	runOnce  sync.Once
	stopOnce sync.Once
}

// NewMQTTHost wraps a connected client.
func NewMQTTHost(client mqtt.Client, topics Topics) *MQTTHost {
	return &MQTTHost{
		client:  client,
		topics:  topics,
		timeout: 2 * time.Second,
		events:  make(chan func(), 32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// QueryGuardState returns the last snapshot from the agent. Until one
// arrives the display is reported as interactive, which vetoes every
// change.
func (h *MQTTHost) QueryGuardState() guard.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.haveGuard {
		return guard.State{InterruptionFilterAllowsAll: true, DisplayInteractive: true}
	}
	return h.guard
}

// SetRingerMode publishes the requested mode and waits for the broker to
// accept it.
func (h *MQTTHost) SetRingerMode(m ringer.Mode) error {
	payload, err := json.Marshal(modePayload{Mode: m})
	if err != nil {
		return fmt.Errorf("mqtt host: marshal mode: %w", err)
	}
	token := h.client.Publish(h.topics.RingerSet, 1, false, payload)
	if !token.WaitTimeout(h.timeout) {
		return fmt.Errorf("mqtt host: publish %s: timed out after %s", h.topics.RingerSet, h.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt host: publish %s: %w", h.topics.RingerSet, err)
	}
	return nil
}

// CurrentMode returns the mode last reported by the agent.
func (h *MQTTHost) CurrentMode() (ringer.Mode, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.haveMode {
		return ringer.Normal, ErrModeUnknown
	}
	return h.mode, nil
}

// HandleGuard stores a guard snapshot.
func (h *MQTTHost) HandleGuard(payload []byte) error {
	var s guard.State
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("guard payload: %w", err)
	}
	h.mu.Lock()
	h.guard = s
	h.haveGuard = true
	h.mu.Unlock()
	return nil
}

// HandleRingerState stores the mode reported by the agent. Both
// {"mode":"vibrate"} and a bare "vibrate" are accepted.
func (h *MQTTHost) HandleRingerState(payload []byte) error {
	var p modePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m, perr := ringer.ParseMode(string(payload))
		if perr != nil {
			return fmt.Errorf("ringer state payload: %w", err)
		}
		p.Mode = m
	}
	h.mu.Lock()
	h.mode = p.Mode
	h.haveMode = true
	h.mu.Unlock()
	return nil
}

// applyDisplay records the display state for the guard.
func (h *MQTTHost) applyDisplay(payload []byte) (bool, error) {
	var p displayPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false, fmt.Errorf("display payload: %w", err)
	}
	h.mu.Lock()
	h.guard.DisplayInteractive = p.Interactive
	h.mu.Unlock()
	return p.Interactive, nil
}

// parseCommand accepts "enable" or "disable".
func parseCommand(payload []byte) (func(Controller) error, error) {
	switch cmd := strings.ToLower(strings.TrimSpace(string(payload))); cmd {
	case "enable":
		return Controller.Enable, nil
	case "disable":
		return Controller.Disable, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// Attach subscribes to all inbound topics. Guard and ringer reports are
// stored from the MQTT router; display and command messages are parsed
// there and handed to c on the host's own goroutine, in arrival order.
// Call Close to stop that goroutine.
func (h *MQTTHost) Attach(c Controller) error {
	h.runOnce.Do(func() { go h.run() })

	routes := []struct {
		topic  string
		handle func([]byte) error
	}{
		{h.topics.Guard, h.HandleGuard},
		{h.topics.RingerState, h.HandleRingerState},
		{h.topics.Display, func(b []byte) error {
			interactive, err := h.applyDisplay(b)
			if err != nil {
				return err
			}
			h.dispatch("display", func() error { return c.DisplayChanged(interactive) })
			return nil
		}},
		{h.topics.Command, func(b []byte) error {
			apply, err := parseCommand(b)
			if err != nil {
				return err
			}
			h.dispatch("command", func() error { return apply(c) })
			return nil
		}},
	}
	for _, r := range routes {
		if r.topic == "" {
			continue
		}
		handle := r.handle
		token := h.client.Subscribe(r.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			if err := handle(msg.Payload()); err != nil {
				log.Printf("mqtt host: %s: %v", msg.Topic(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("mqtt host: subscribe %s: %w", r.topic, token.Error())
		}
		log.Printf("mqtt host: subscribed to %s", r.topic)
	}
	return nil
}

func (h *MQTTHost) dispatch(what string, fn func() error) {
	select {
	case <-h.stop:
		log.Printf("mqtt host: closed, %s event dropped", what)
		return
	default:
	}
	select {
	case h.events <- func() {
		if err := fn(); err != nil {
			log.Printf("mqtt host: %s: %v", what, err)
		}
	}:
	case <-h.stop:
		log.Printf("mqtt host: closed, %s event dropped", what)
	}
}

func (h *MQTTHost) run() {
	defer close(h.done)
	for {
		select {
		case fn := <-h.events:
			fn()
		case <-h.stop:
			for {
				select {
				case fn := <-h.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Close runs the controller events already received and stops the
// host goroutine.
func (h *MQTTHost) Close() {
	h.runOnce.Do(func() { close(h.done) })
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// OnEvaluation publishes each evaluation without waiting for the broker.
func (h *MQTTHost) OnEvaluation(ev engine.Evaluation) {
	if h.topics.Evaluations == "" {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("mqtt host: marshal evaluation: %v", err)
		return
	}
	h.client.Publish(h.topics.Evaluations, 0, false, payload)
}
