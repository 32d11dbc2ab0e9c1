//go:build !tinygo

package cdi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/protocol"
)

// DefaultBaudRate is the default serial link speed.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// SerialLink carries command frames in and telemetry frames out over one serial port.
type SerialLink struct {
	port     string
	baudRate int

	mu   sync.Mutex
	conn io.ReadWriteCloser
	buf  []byte
}

// NewSerialLink creates an unconnected link.
func NewSerialLink(port string, baudRate int) *SerialLink {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &SerialLink{port: port, baudRate: baudRate}
}

// Connect opens the serial port.
func (s *SerialLink) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, err := serial.Open(s.port, &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	s.conn = conn
	return nil
}

// attach uses an already open stream instead of a serial port.
func (s *SerialLink) attach(rw io.ReadWriteCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = rw
}

func (s *SerialLink) stream() (io.ReadWriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	return s.conn, nil
}

// Serve reads command frames and pushes them until ctx is done or the port fails.
func (s *SerialLink) Serve(ctx context.Context, push func(protocol.Command) bool) error {
	conn, err := s.stream()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	err = ReadCommands(conn, func(cmd protocol.Command) {
		logging.Debugf("cdi: serial command %s", cmd)
		push(cmd)
	})
	if ctx.Err() != nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("serial link: %w", err)
}

// Write sends one telemetry frame.
func (s *SerialLink) Write(appID uint16, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.buf = AppendTelemetry(s.buf[:0], appID, payload)
	if _, err := s.conn.Write(s.buf); err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}
	return nil
}

// Close closes the port.
func (s *SerialLink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
