// Package cdi provides host transports for the command/data interface: a UDP
// command port, a framed serial link, and packet sinks.
package cdi

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/itohio/coreloop/pkg/protocol"
)

// Frame markers.
const (
	CommandMark   = 'C'
	TelemetryMark = 'T'
)

// CommandFrameSize is the size of one uplinked command frame: mark, opcode, arg hi, arg lo.
const CommandFrameSize = 4

// MaxPayload bounds telemetry frames accepted by ReadTelemetry.
const MaxPayload = 1 << 16

var (
	ErrBadFrame = errors.New("bad frame")
	ErrTooLarge = errors.New("payload too large")
)

// EncodeCommand builds the frame for one command.
func EncodeCommand(c protocol.Command) [CommandFrameSize]byte {
	return [CommandFrameSize]byte{CommandMark, byte(c.Opcode), c.ArgHi, c.ArgLo}
}

// DecodeCommand parses one command frame.
func DecodeCommand(b []byte) (protocol.Command, error) {
	if len(b) != CommandFrameSize || b[0] != CommandMark {
		return protocol.Command{}, fmt.Errorf("%w: % X", ErrBadFrame, b)
	}
	return protocol.Command{Opcode: protocol.Opcode(b[1]), ArgHi: b[2], ArgLo: b[3]}, nil
}

// ReadCommands reads command frames from a byte stream until it fails, resyncing
// on the frame mark. Each decoded command is passed to fn.
func ReadCommands(r io.Reader, fn func(protocol.Command)) error {
	br := bufio.NewReader(r)
	var buf [CommandFrameSize]byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			return err
		}
		if c != CommandMark {
			continue
		}
		buf[0] = c
		if _, err := io.ReadFull(br, buf[1:]); err != nil {
			return err
		}
		cmd, _ := DecodeCommand(buf[:])
		fn(cmd)
	}
}

// AppendTelemetry appends a telemetry frame: mark, appID and payload length
// (little endian), then the payload.
func AppendTelemetry(dst []byte, appID uint16, payload []byte) []byte {
	dst = append(dst, TelemetryMark)
	dst = binary.LittleEndian.AppendUint16(dst, appID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// ReadTelemetry reads one telemetry frame, skipping bytes until the frame mark.
func ReadTelemetry(r *bufio.Reader) (uint16, []byte, error) {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		if c == TelemetryMark {
			break
		}
	}
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	appID := binary.LittleEndian.Uint16(hdr[:2])
	n := binary.LittleEndian.Uint32(hdr[2:])
	if n > MaxPayload {
		return 0, nil, fmt.Errorf("%w: %d bytes for 0x%04X", ErrTooLarge, n, appID)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return appID, payload, nil
}

// DecodeTelemetry parses a single telemetry frame held in b, as received in one
// UDP datagram.
func DecodeTelemetry(b []byte) (uint16, []byte, error) {
	if len(b) < 7 || b[0] != TelemetryMark {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(b))
	}
	appID := binary.LittleEndian.Uint16(b[1:3])
	n := binary.LittleEndian.Uint32(b[3:7])
	if int(n) != len(b)-7 {
		return 0, nil, fmt.Errorf("%w: length %d, have %d", ErrBadFrame, n, len(b)-7)
	}
	return appID, b[7:], nil
}
