// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	serial "github.com/jacobsa/go-serial/serial"
)

// SerialSource reads $PSENS sentences from a microcontroller bridge on a
// serial port.
type SerialSource struct {
	opts serial.OpenOptions
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed *atomic.Bool
	done   chan struct{}
}

// SerialOptions returns 8N1 options for the bridge. Reads return after
// 100ms without input so a closed port is noticed; the file descriptor
// is blocking and Close alone does not wake a pending read.
func SerialOptions(portName string, baudRate uint) serial.OpenOptions {
	return serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
		ParityMode:            serial.PARITY_NONE,
	}
}

// NewSerialSource prepares a source for the given port. Nothing is
// opened until Subscribe.
func NewSerialSource(portName string, baudRate uint) *SerialSource {
	return &SerialSource{
		opts: SerialOptions(portName, baudRate),
		open: serial.Open,
	}
}

// Subscribe opens the port and streams readings to handler until
// Unsubscribe. Subscribing twice is a no-op.
func (s *SerialSource) Subscribe(handler func(Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	port, err := s.open(s.opts)
	if err != nil {
		return fmt.Errorf("serial source: open %s: %w", s.opts.PortName, err)
	}
	log.Printf("serial source: %s opened at %d baud", s.opts.PortName, s.opts.BaudRate)

	s.port = port
	s.closed = new(atomic.Bool)
	s.done = make(chan struct{})
	go func(r io.Reader, done chan struct{}) {
		defer close(done)
		if err := ReadSentences(r, handler); err != nil {
			log.Printf("serial source: %v", err)
		}
	}(idleReader{r: port, closed: s.closed}, s.done)
	return nil
}

// Unsubscribe closes the port and waits for the reader to exit.
func (s *SerialSource) Unsubscribe() error {
	s.mu.Lock()
	port, closed, done := s.port, s.closed, s.done
	s.port, s.closed, s.done = nil, nil, nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	closed.Store(true)
	err := port.Close()
	<-done
	log.Printf("serial source: %s closed", s.opts.PortName)
	return err
}

// idleReader retries the empty reads a port returns when the
// inter-character timer expires, until closed is set.
type idleReader struct {
	r      io.Reader
	closed *atomic.Bool
}

func (r idleReader) Read(p []byte) (int, error) {
	for {
		n, err := r.r.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}
		if r.closed.Load() {
			return 0, io.EOF
		}
	}
}

// ReadSentences parses bridge lines from r until EOF or a read error.
// Lines that are not valid $PSENS sentences are skipped, the bridge is
// noisy right after reset.
func ReadSentences(r io.Reader, handler func(Reading)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "$") {
			if reading, perr := ParseSentence(line); perr == nil {
				handler(reading)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}
