package state

import "github.com/itohio/coreloop/pkg/protocol"

// Flag sets fault bits. Bits are independent and only accumulate.
func (s *InstrumentState) Flag(m protocol.ErrorMask) {
	s.Base.Errors |= uint32(m)
}

// Errors returns the accumulated fault bits without clearing them.
func (s *InstrumentState) Errors() protocol.ErrorMask {
	return protocol.ErrorMask(s.Base.Errors)
}

// HasError reports whether every bit of m is set.
func (s *InstrumentState) HasError(m protocol.ErrorMask) bool {
	return s.Errors()&m == m
}

// ReadAndClearErrors returns the fault bits and clears them; used when the mask is
// copied into an outgoing housekeeping packet.
func (s *InstrumentState) ReadAndClearErrors() protocol.ErrorMask {
	m := s.Errors()
	s.Base.Errors = 0
	return m
}
