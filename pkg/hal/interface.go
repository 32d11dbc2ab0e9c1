// Package hal defines the hardware collaborators of the core loop.
package hal

import (
	"errors"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// ErrNotStored is returned by Store.Load for a slot that was never saved.
var ErrNotStored = errors.New("nothing stored")

// CDI is the command/data interface shared with the spacecraft.
type CDI interface {
	// NewCommand returns the pending command, if any, without blocking.
	NewCommand() (protocol.Command, bool)
	Ready() bool
	BlockUntilReady()
	// Dispatch stages payload and sends it under appID.
	Dispatch(appID uint16, payload []byte) error
}

// Spectrometer is the analog front end and the FPGA spectrometer.
type Spectrometer interface {
	SetGain(gains [protocol.NInput]state.Gain)
	SetRoute(ch int, r state.Route)
	SetAvg1(shift uint8)
	SetBitslice(prod int, slice uint8)
	SetNotch(notch uint8)
	SetSpectrometerEnable(on bool)

	TriggerADCStat(samples int)
	// ADCStat returns the last statistics run once it is complete.
	ADCStat() ([protocol.NInput]state.ADCStat, bool)

	// DigitalOverflow returns the correlation and notch overflow masks.
	DigitalOverflow() (spec, notch uint16)
	Time() (seconds uint32, subseconds uint16)
	TVS() [4]uint16

	SpectrumReady() bool
	ClearSpectrumReady()
	Spectrum(prod int) []uint32
	// SpectrumPeaks returns the largest bin of every product in the ready spectrum.
	SpectrumPeaks() [protocol.NSpectra]uint32

	Reset()
}

// Store is opaque persistent storage for configuration and sequencer programs.
type Store interface {
	Save(slot string, blob []byte) error
	Load(slot string) ([]byte, error)
}

// Store slots.
const (
	SlotConfig  = "config"
	SlotProgram = "program"
)
