// Package state holds the single instrument-state record owned by the core loop.
//
// Every type here is fixed-size so that the record has an exact wire form: the
// housekeeping packet is the record itself, byte for byte.
package state

import (
	"fmt"

	"github.com/itohio/coreloop/pkg/protocol"
)

// Gain is a commanded or realized analog gain level.
type Gain uint8

const (
	GainLow Gain = iota
	GainMed
	GainHigh
	GainAuto // commanded only, never realized
)

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "L"
	case GainMed:
		return "M"
	case GainHigh:
		return "H"
	case GainAuto:
		return "A"
	}
	return fmt.Sprintf("Gain(%d)", uint8(g))
}

// Format selects how spectra are encoded on the downlink.
type Format uint8

const (
	Output32Bit Format = iota
	Output16BitUpdates
	Output16BitFloat
)

// Notch strength levels: off, x4, x16, x64, x256.
const MaxNotch = 4

// Route sends Plus - Minus to an ADC channel. Minus == protocol.GroundRoute is single ended.
type Route struct {
	Plus  uint8
	Minus uint8
}

// SingleEnded reports whether the route subtracts from ground.
func (r Route) SingleEnded() bool {
	return r.Minus == protocol.GroundRoute
}

// SequencerState is everything needed to put the spectrometer into one configuration.
type SequencerState struct {
	Gain             [protocol.NInput]Gain
	GainAutoMin      [protocol.NInput]uint16 // meaningful only when Gain is GainAuto
	GainAutoMult     [protocol.NInput]uint16
	Route            [protocol.NInput]Route
	Navg1Shift       uint8 // stage 1 (FPGA) averaging
	Navg2Shift       uint8 // stage 2 (uC) averaging
	Notch            uint8
	Navgf            uint8 // frequency averaging, 1..4
	Bitslice         [protocol.NSpectra]uint8
	BitsliceKeepBits uint8 // floor of significant bits kept by auto-bitslice
	Format           Format
}

// Program is the sequencer: up to NSeqMax steps, each held for Dwell ticks.
type Program struct {
	Count       uint8  // steps in a cycle
	Step        uint8  // current step
	Substep     uint16 // ticks spent in the current step
	Repeat      uint16 // programmed repeats, 0 is infinite
	Remaining   uint16 // repeats left in the current run
	StoreCursor uint8  // slot written by the next SEQ_STO
	Steps       [protocol.NSeqMax]SequencerState
	Dwell       [protocol.NSeqMax]uint16
}

// ADCStat summarizes one ADC channel over a statistics run.
type ADCStat struct {
	Min, Max   int16
	Valid      uint32
	InvalidMax uint32 // samples above the valid range
	InvalidMin uint32 // samples below the valid range
	Mean       int32
	Var        uint64
}

// Peak is the largest magnitude seen in the run.
func (s ADCStat) Peak() uint16 {
	lo, hi := int32(s.Min), int32(s.Max)
	if lo < 0 {
		lo = -lo
	}
	if hi < 0 {
		hi = -hi
	}
	if lo > hi {
		return uint16(lo)
	}
	return uint16(hi)
}

// Clipped reports whether any sample fell outside the valid ADC range.
func (s ADCStat) Clipped() bool {
	return s.InvalidMax+s.InvalidMin > 0
}

// BaseState is dumped with every metadata packet.
type BaseState struct {
	TimeSeconds        uint32
	TimeSubseconds     uint16
	TVS                [4]uint16 // 1.0V, 1.8V, 2.5V and temperature
	Errors             uint32
	ActualGain         [protocol.NInput]Gain
	ActualBitslice     [protocol.NSpectra]uint8
	SpecOverflow       uint16
	NotchOverflow      uint16
	ADC                [protocol.NInput]ADCStat
	SpectrometerEnable bool
	SeqCount           uint8
	SeqStep            uint8 // 0xFF while the sequencer is disabled
	SeqSubstep         uint16
	SeqRepeat          uint16
}

// Dispatch is the single pending-dispatch slot.
type Dispatch struct {
	AppID       uint16
	Countdown   uint16
	Format      Format
	Product     uint8 // next spectra product to send
	PacketID    uint32
	HKType      uint8
	Pending     bool
	Acquisition bool // carries sequencer/spectra data
	InFlight    bool // metadata is out; the products follow whatever happens
}

// CDIStats counts traffic through the CDI.
type CDIStats struct {
	Commands uint32
	Packets  uint32
	Bytes    uint64
}

// Calibrator holds the calibration-signal acquisition parameters.
type Calibrator struct {
	Frac        uint8
	MaxDrift    uint8 // 0.1 ppm
	LockDrift   uint8 // 0.01 ppm
	SNR         uint8
	BinStart    uint16
	BinEnd      uint16
	AntennaMask uint8
}

// Zoom holds the two zoom-channel selections.
type Zoom struct {
	Enable bool
	Input  [2]uint8
	Bin    [2]uint16
}

// InstrumentState is the one mutable record of the instrument.
type InstrumentState struct {
	Seq      SequencerState // active configuration
	Base     BaseState
	Dispatch Dispatch

	Navg1, Navg2     uint16
	TotalShift       uint8 // Navg1Shift + Navg2Shift
	Nfreq            uint16
	GainAutoMax      [protocol.NInput]uint16
	SequencerEnabled bool
	Program          Program

	HiFrac, MedFrac  uint8  // share of bursts, out of 255, sent at high and medium priority
	Bursts           uint32 // acquisition bursts sent, drives the priority rotation
	RejectLevel      uint8
	ADCEnabled       bool
	RangeADCPending  bool
	TimeToDie        bool
	Settle           uint16 // ticks left in the settle window
	NextPacketID     uint32
	HeartbeatCounter uint16
	EOSPending       bool
	CDI              CDIStats
	Calibrator       Calibrator
	Zoom             Zoom
}
