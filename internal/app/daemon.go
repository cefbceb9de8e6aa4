// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/automute/internal/classifier"
	"github.com/relabs-tech/automute/internal/config"
	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/history"
	"github.com/relabs-tech/automute/internal/host"
	"github.com/relabs-tech/automute/internal/lifecycle"
	"github.com/relabs-tech/automute/internal/sensors"
	"github.com/relabs-tech/automute/internal/state"
)

const sensorQueueSize = 256

// SensorTopics returns the sensor topics from cfg.
func SensorTopics(cfg *config.Config) sensors.Topics {
	return sensors.Topics{
		Proximity:    cfg.TopicProximity,
		Light:        cfg.TopicLight,
		Acceleration: cfg.TopicAccel,
	}
}

// HostTopics returns the host agent topics from cfg.
func HostTopics(cfg *config.Config) host.Topics {
	return host.Topics{
		Guard:       cfg.TopicGuard,
		Display:     cfg.TopicDisplay,
		Command:     cfg.TopicCommand,
		RingerSet:   cfg.TopicRingerSet,
		RingerState: cfg.TopicRingerState,
		Evaluations: cfg.TopicEvaluations,
	}
}

// NewSource builds the sensor source selected by SENSOR_SOURCE.
func NewSource(cfg *config.Config, client mqtt.Client) (sensors.Source, error) {
	switch cfg.SensorSource {
	case "mqtt":
		return sensors.NewQueuedSource(sensors.NewMQTTSource(client, SensorTopics(cfg)), sensorQueueSize), nil
	case "serial":
		return sensors.NewSerialSource(cfg.SerialPort, uint(cfg.SerialBaudRate)), nil
	case "imu":
		if cfg.ClassifierKind != classifier.LightTilt {
			return nil, fmt.Errorf("SENSOR_SOURCE=imu only provides acceleration; CLASSIFIER_KIND=%s cannot use it", cfg.ClassifierKind)
		}
		log.Printf("daemon: WARNING: imu source provides no light readings; light_tilt will stay open until lux arrives")
		reader, err := sensors.OpenMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin)
		if err != nil {
			return nil, err
		}
		return sensors.NewIMUSource(reader, time.Duration(cfg.IMUSampleInterval)*time.Millisecond), nil
	case "mock":
		step := 100 * time.Millisecond
		return sensors.NewMockSource(sensors.PocketCycle(step, 50, 20), step), nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
	}
}

// Service is the wired detection service: host bridge, engine, history
// and lifecycle, without the web server, display or signal handling.
type Service struct {
	Host       *host.MQTTHost
	Engine     *engine.Engine
	Controller *lifecycle.Controller
	Web        *Web

	history *history.Store
}

// NewService wires a service on a connected client.
func NewService(cfg *config.Config, client mqtt.Client) (*Service, error) {
	src, err := NewSource(cfg, client)
	if err != nil {
		return nil, err
	}
	log.Printf("daemon: sensor source %s", cfg.SensorSource)

	s := &Service{Host: host.NewMQTTHost(client, HostTopics(cfg))}
	s.Engine = engine.New(s.Host, s.Host, s.Host)

	var hist HistoryReader
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		s.Engine.AddListener(store)
		s.history = store
		hist = store
		log.Printf("daemon: recording transitions to %s", cfg.HistoryDB)
	}

	s.Controller = lifecycle.New(s.Engine, src, state.NewFileStore(cfg.StateFile), cfg.EngineSettings(),
		s.Host.QueryGuardState().DisplayInteractive)

	s.Web = NewWeb(s.Status, hist)
	s.Engine.AddListener(s.Web)
	return s, nil
}

// Status reports the service state for the web API and the display.
func (s *Service) Status() Status {
	gs := s.Host.QueryGuardState()
	st := Status{
		Enabled: s.Controller.Enabled(),
		Veto:    guard.Check(gs).String(),
		Guard:   gs,
		Engine:  s.Engine.Snapshot(),
	}
	if s.history != nil && st.Engine.Running {
		n, err := s.history.CountBySession(context.Background(), st.Engine.SessionID)
		if err != nil {
			log.Printf("daemon: count transitions: %v", err)
		}
		st.Recorded = n
	}
	return st
}

// Start subscribes to the host topics and restores the persisted
// service state.
func (s *Service) Start() error {
	if err := s.Host.Attach(s.Controller); err != nil {
		return err
	}
	if err := s.Controller.Restore(); err != nil {
		log.Printf("daemon: restore: %v", err)
	}
	return nil
}

// Close drains pending host events, stops sensing and closes history.
// The persisted service state is left alone.
func (s *Service) Close() error {
	s.Host.Close()
	err := s.Controller.Shutdown()
	if s.history != nil {
		if cerr := s.history.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// RunDaemon runs the detection service until SIGINT or SIGTERM.
func RunDaemon() error {
	cfg := config.Get()

	// Message handlers only parse and queue, so paho's ordered delivery
	// is kept.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("daemon: connected to MQTT broker at %s", cfg.MQTTBroker)

	svc, err := NewService(cfg, client)
	if err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		svc.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := svc.Web.Run(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)); err != nil {
			log.Printf("daemon: web server: %v", err)
		}
	}()

	if cfg.DisplayEnabled {
		go func() {
			interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
			if err := RunDisplay(ctx, cfg.DisplayI2CBus, interval, svc.Status); err != nil {
				log.Printf("daemon: display: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("daemon: shutting down")
	return svc.Close()
}
