// Package packet defines the downlink packet layouts and their little-endian codec.
//
// Layouts are plain structs of fixed-size fields; encoding/binary writes them packed,
// with no padding.
package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

var (
	ErrShortPacket  = errors.New("short packet")
	ErrLongPacket   = errors.New("trailing bytes in packet")
	ErrUnknownAppID = errors.New("unknown appid")
	ErrBadMagic     = errors.New("bad heartbeat magic")
)

var order = binary.LittleEndian

// Header opens every packet.
type Header struct {
	Version  uint16
	PacketID uint32
}

// NewHeader stamps the protocol version on a packet id.
func NewHeader(id uint32) Header {
	return Header{Version: protocol.Version, PacketID: id}
}

// Hello is sent once at boot.
type Hello struct {
	Header
	SoftwareVersion uint32
	TimeSeconds     uint32
	TimeSubseconds  uint16
}

// MetaData precedes every spectra product burst.
type MetaData struct {
	Header
	Seq  state.SequencerState
	Base state.BaseState
}

// Housekeeping0 carries the complete instrument state.
type Housekeeping0 struct {
	Header
	HKType uint8
	State  state.InstrumentState
}

// Housekeeping1 carries ADC statistics and the realized gains.
type Housekeeping1 struct {
	Header
	HKType     uint8
	ADC        [protocol.NInput]state.ADCStat
	ActualGain [protocol.NInput]state.Gain
}

// Heartbeat is the idle liveness packet.
type Heartbeat struct {
	Header
	Count          uint32
	TimeSeconds    uint32
	TimeSubseconds uint16
	TVS            [4]uint16
	CDI            state.CDIStats
	Errors         uint32
	Magic          [6]byte
}

// EndOfSequence reports that a finite sequencer run completed.
type EndOfSequence struct {
	Header
	Count  uint8
	Repeat uint16
}

// SpectrumHeader precedes the bins of one spectra product.
type SpectrumHeader struct {
	Header
	Product uint8
	Format  state.Format
	Slice   uint8
	Bins    uint16
}

// HeartbeatMagic returns the magic trailer as a fixed array.
func HeartbeatMagic() [6]byte {
	var m [6]byte
	copy(m[:], protocol.HeartbeatMagic)
	return m
}

// Size returns the encoded size of a layout.
func Size(v any) int {
	return binary.Size(v)
}

// Encode serializes a fixed layout.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(v))
	if err := binary.Write(&buf, order, v); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a fixed layout. The buffer must be exactly the layout's size.
func Decode[T any](b []byte) (T, error) {
	var v T
	n := binary.Size(v)
	switch {
	case len(b) < n:
		return v, fmt.Errorf("decode %T: %w: got %d bytes, need %d", v, ErrShortPacket, len(b), n)
	case len(b) > n:
		return v, fmt.Errorf("decode %T: %w: got %d bytes, need %d", v, ErrLongPacket, len(b), n)
	}
	if _, err := binary.Decode(b, order, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// PeekHeader reads the header without decoding the rest.
func PeekHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < binary.Size(h) {
		return h, ErrShortPacket
	}
	h.Version = order.Uint16(b)
	h.PacketID = order.Uint32(b[2:])
	return h, nil
}
