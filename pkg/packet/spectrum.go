package packet

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/itohio/coreloop/pkg/state"
)

const (
	floatMantBits = 11
	floatMantMask = 1<<floatMantBits - 1
)

// EncodeSpectrum serializes one spectra product in the given header's format.
func EncodeSpectrum(h SpectrumHeader, data []uint32) ([]byte, error) {
	h.Bins = uint16(len(data))
	out, err := Encode(h)
	if err != nil {
		return nil, err
	}
	switch h.Format {
	case state.Output32Bit:
		for _, v := range data {
			out = order.AppendUint32(out, v)
		}
	case state.Output16BitUpdates:
		for _, v := range data {
			out = order.AppendUint16(out, Slice16(v, h.Slice))
		}
	case state.Output16BitFloat:
		for _, v := range data {
			out = order.AppendUint16(out, Float16(v))
		}
	default:
		return nil, fmt.Errorf("encode spectrum: unknown format %d", h.Format)
	}
	return out, nil
}

// DecodeSpectrum parses a spectra product back into bin values. 16-bit formats are
// lossy; values are scaled back to their 32-bit range.
func DecodeSpectrum(b []byte) (SpectrumHeader, []uint32, error) {
	var h SpectrumHeader
	n := binary.Size(h)
	if len(b) < n {
		return h, nil, fmt.Errorf("decode spectrum: %w", ErrShortPacket)
	}
	if _, err := binary.Decode(b[:n], order, &h); err != nil {
		return h, nil, fmt.Errorf("decode spectrum: %w", err)
	}
	body := b[n:]
	width := 2
	if h.Format == state.Output32Bit {
		width = 4
	}
	if len(body) != int(h.Bins)*width {
		return h, nil, fmt.Errorf("decode spectrum: %w: %d bins in %d bytes", ErrShortPacket, h.Bins, len(body))
	}

	data := make([]uint32, h.Bins)
	for i := range data {
		switch h.Format {
		case state.Output32Bit:
			data[i] = order.Uint32(body[i*4:])
		case state.Output16BitUpdates:
			data[i] = uint32(order.Uint16(body[i*2:])) << h.Slice
		case state.Output16BitFloat:
			data[i] = Float32(order.Uint16(body[i*2:]))
		default:
			return h, nil, fmt.Errorf("decode spectrum: unknown format %d", h.Format)
		}
	}
	return h, data, nil
}

// Slice16 drops the low slice bits and saturates to 16 bits.
func Slice16(v uint32, slice uint8) uint16 {
	v >>= slice
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

// Float16 packs v as a 5-bit exponent and 11-bit mantissa.
func Float16(v uint32) uint16 {
	e := bits.Len32(v) - floatMantBits
	if e < 0 {
		e = 0
	}
	return uint16(e)<<floatMantBits | uint16(v>>e)&floatMantMask
}

// Float32 expands a Float16 value.
func Float32(f uint16) uint32 {
	e := f >> floatMantBits
	return uint32(f&floatMantMask) << e
}
