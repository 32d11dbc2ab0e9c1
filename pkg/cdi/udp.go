//go:build !tinygo

package cdi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/protocol"
)

// CommandPort receives command frames as UDP datagrams.
type CommandPort struct {
	conn net.PacketConn
}

// ListenCommands opens the UDP command port on addr.
func ListenCommands(addr string) (*CommandPort, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &CommandPort{conn: conn}, nil
}

// Addr returns the bound address.
func (p *CommandPort) Addr() net.Addr {
	return p.conn.LocalAddr()
}

// Serve reads datagrams and pushes decoded commands until ctx is done.
// Malformed datagrams are logged and skipped.
func (p *CommandPort) Serve(ctx context.Context, push func(protocol.Command) bool) error {
	stop := context.AfterFunc(ctx, func() { p.conn.Close() })
	defer stop()

	buf := make([]byte, 64)
	for {
		n, from, err := p.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("command port: %w", err)
		}
		cmd, err := DecodeCommand(buf[:n])
		if err != nil {
			logging.Logf("cdi: ignoring datagram from %s: %v", from, err)
			continue
		}
		logging.Debugf("cdi: command %s", cmd)
		push(cmd)
	}
}

// Close closes the port.
func (p *CommandPort) Close() error {
	return p.conn.Close()
}

// UDPSink mirrors packets as telemetry frames to a UDP address.
type UDPSink struct {
	conn net.Conn
	buf  []byte
}

// DialTelemetry creates a sink sending to addr.
func DialTelemetry(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) Write(appID uint16, payload []byte) error {
	s.buf = AppendTelemetry(s.buf[:0], appID, payload)
	if _, err := s.conn.Write(s.buf); err != nil {
		return fmt.Errorf("telemetry mirror: %w", err)
	}
	return nil
}

// Close closes the sink.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// TelemetryListener receives telemetry frames mirrored by a UDPSink.
type TelemetryListener struct {
	conn net.PacketConn
}

// ListenTelemetry opens addr for mirrored telemetry.
func ListenTelemetry(addr string) (*TelemetryListener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &TelemetryListener{conn: conn}, nil
}

// Addr returns the bound address.
func (l *TelemetryListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve passes every received packet to sink until ctx is done.
func (l *TelemetryListener) Serve(ctx context.Context, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	buf := make([]byte, MaxPayload+7)
	for {
		n, _, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("telemetry listener: %w", err)
		}
		appID, payload, err := DecodeTelemetry(buf[:n])
		if err != nil {
			logging.Logf("cdi: %v", err)
			continue
		}
		if err := sink.Write(appID, append([]byte(nil), payload...)); err != nil {
			logging.Logf("cdi: %v", err)
		}
	}
}

// Close closes the listener.
func (l *TelemetryListener) Close() error {
	return l.conn.Close()
}
