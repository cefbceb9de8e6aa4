// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package lifecycle decides when the sensing pipeline runs: only while
// the service is enabled and the display is off.
package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/sensors"
	"github.com/relabs-tech/automute/internal/state"
)

// Pipeline is the part of the engine the controller drives.
type Pipeline interface {
	Start(engine.Settings) *engine.Session
	Stop()
	OnSensorEvent(sensors.Reading) error
}

// Controller owns the sensor subscription and the engine session.
type Controller struct {
	pipeline Pipeline
	source   sensors.Source
	store    state.Store
	settings engine.Settings

	mu        sync.Mutex
	enabled   bool
	displayOn bool
	running   bool
}

// New returns a disabled controller. displayOn is the display state at
// construction time.
func New(p Pipeline, src sensors.Source, store state.Store, settings engine.Settings, displayOn bool) *Controller {
	return &Controller{
		pipeline:  p,
		source:    src,
		store:     store,
		settings:  settings,
		displayOn: displayOn,
	}
}

// Restore enables the controller if the persisted state says so.
func (c *Controller) Restore() error {
	st, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("lifecycle: load service state: %w", err)
	}
	log.Printf("lifecycle: persisted service state is %s", st)
	if st != state.Enabled {
		return nil
	}
	return c.Enable()
}

// Enable persists Enabled and starts sensing if the display is off.
// Enabling twice is a no-op.
func (c *Controller) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		return nil
	}
	if err := c.store.Save(state.Enabled); err != nil {
		return fmt.Errorf("lifecycle: save service state: %w", err)
	}
	c.enabled = true
	log.Printf("lifecycle: enabled (display on=%t)", c.displayOn)

	if !c.displayOn {
		return c.startLocked()
	}
	return nil
}

// Disable persists Disabled and stops sensing. Disabling a disabled
// controller does nothing.
func (c *Controller) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}
	c.enabled = false
	log.Printf("lifecycle: disabled")

	stopErr := c.stopLocked()
	if err := c.store.Save(state.Disabled); err != nil {
		return errors.Join(stopErr, fmt.Errorf("lifecycle: save service state: %w", err))
	}
	return stopErr
}

// DisplayChanged reacts to the display turning on or off. Sensing stops
// first and restarts only if the display is now off.
func (c *Controller) DisplayChanged(interactive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.displayOn = interactive
	if !c.enabled {
		return nil
	}

	if err := c.stopLocked(); err != nil {
		return err
	}
	if !interactive {
		return c.startLocked()
	}
	return nil
}

// Enabled reports the in-memory service state.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Running reports whether sensing is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Shutdown stops sensing without touching the persisted state.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) startLocked() error {
	if c.running {
		return nil
	}
	session := c.pipeline.Start(c.settings)

	err := c.source.Subscribe(func(r sensors.Reading) {
		if err := c.pipeline.OnSensorEvent(r); err != nil {
			log.Printf("lifecycle: %v", err)
		}
	})
	if err != nil {
		c.pipeline.Stop()
		return fmt.Errorf("lifecycle: subscribe: %w", err)
	}

	c.running = true
	log.Printf("lifecycle: sensing started (session %s)", session.ID())
	return nil
}

func (c *Controller) stopLocked() error {
	if !c.running {
		return nil
	}
	c.running = false

	err := c.source.Unsubscribe()
	c.pipeline.Stop()
	log.Printf("lifecycle: sensing stopped")
	if err != nil {
		return fmt.Errorf("lifecycle: unsubscribe: %w", err)
	}
	return nil
}
