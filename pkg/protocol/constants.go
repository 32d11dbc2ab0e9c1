// Package protocol holds the fixed tables shared by the flight core and the ground
// tooling: opcodes, AppIDs, error bits and instrument geometry.
package protocol

const (
	// Version is the 16-bit layout version carried by every versioned packet.
	// MSB is code version, LSB is metadata version.
	Version uint16 = 0x0100

	// SoftwareVersion is reported in the startup hello packet.
	SoftwareVersion uint32 = 0x00000100
)

// Instrument geometry.
const (
	NInput    = 4    // analog input channels
	NSpectra  = 16   // correlation products
	NChannels = 2048 // frequency bins before averaging
	NSeqMax   = 32   // sequencer program capacity
)

// Timing constants, in timer ticks.
const (
	DispatchDelay  = 10   // ticks to wait before a queued packet goes out
	ResettleDelay  = 2    // ticks the instrument needs after reconfiguration
	HeartbeatDelay = 1000 // ticks between heartbeats

	ADCStatSamples = 16384
)

// GroundRoute marks a single-ended route ("minus" input is ground).
const GroundRoute uint8 = 0xFF

// BitsliceAuto marks a product whose slice is chosen by the auto-bitslice controller.
const BitsliceAuto uint8 = 0xFF

// HeartbeatMagic terminates every heartbeat payload.
const HeartbeatMagic = "BRNMRL"

// Timing groups the tick delays so that host runs can tune them.
type Timing struct {
	DispatchDelay  uint16
	ResettleDelay  uint16
	HeartbeatDelay uint16
	ADCStatSamples int
}

// DefaultTiming returns the flight delays.
func DefaultTiming() Timing {
	return Timing{
		DispatchDelay:  DispatchDelay,
		ResettleDelay:  ResettleDelay,
		HeartbeatDelay: HeartbeatDelay,
		ADCStatSamples: ADCStatSamples,
	}
}
