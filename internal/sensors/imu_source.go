// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// AccelReader returns one raw accelerometer sample.
type AccelReader interface {
	ReadAccel() (x, y, z int16, err error)
}

type mpuReader struct {
	imu *mpu9250.MPU9250
}

func (m *mpuReader) ReadAccel() (int16, int16, int16, error) {
	ax, err := m.imu.GetAccelerationX()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("accel X: %w", err)
	}
	ay, err := m.imu.GetAccelerationY()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("accel Y: %w", err)
	}
	az, err := m.imu.GetAccelerationZ()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("accel Z: %w", err)
	}
	return ax, ay, az, nil
}

// OpenMPU9250 initializes an MPU9250 over SPI and returns a reader for
// its accelerometer.
func OpenMPU9250(spiDev, csPin string) (AccelReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("imu source: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("imu source: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("imu source: SPI transport (%s): %w", spiDev, err)
	}

	imu, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("imu source: device creation: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("imu source: initialization: %w", err)
	}

	// Only the direction of gravity is used, so a failed calibration
	// is not fatal.
	if err := imu.Calibrate(); err != nil {
		log.Printf("imu source: WARNING: calibration failed: %v", err)
	} else {
		log.Printf("imu source: calibration complete")
	}

	return &mpuReader{imu: imu}, nil
}

// IMUSource polls an accelerometer at a fixed interval and stamps each
// sample with monotonic nanoseconds since the source was created.
type IMUSource struct {
	reader   AccelReader
	interval time.Duration
	epoch    time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewIMUSource wraps an accelerometer reader.
func NewIMUSource(reader AccelReader, interval time.Duration) *IMUSource {
	return &IMUSource{reader: reader, interval: interval, epoch: time.Now()}
}

// Subscribe starts the polling loop.
func (s *IMUSource) Subscribe(handler func(Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(handler, s.stop, s.done)
	log.Printf("imu source: polling every %s", s.interval)
	return nil
}

// Unsubscribe stops the polling loop and waits for it to exit.
func (s *IMUSource) Unsubscribe() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	log.Printf("imu source: stopped")
	return nil
}

func (s *IMUSource) run(handler func(Reading), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			x, y, z, err := s.reader.ReadAccel()
			if err != nil {
				log.Printf("imu source: %v", err)
				continue
			}
			// time.Since uses the monotonic clock reading.
			ts := time.Since(s.epoch).Nanoseconds()
			handler(Acceleration(ts, float64(x), float64(y), float64(z)))
		}
	}
}
