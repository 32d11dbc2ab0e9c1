package state

import "github.com/itohio/coreloop/pkg/protocol"

// DefaultSequencerState returns the boot configuration of the spectrometer.
func DefaultSequencerState() SequencerState {
	s := SequencerState{
		Navg1Shift:       14,
		Navg2Shift:       3,
		Notch:            0,
		Navgf:            1,
		BitsliceKeepBits: 16,
		Format:           Output32Bit,
	}
	for i := range protocol.NInput {
		s.Gain[i] = GainMed
		s.GainAutoMin[i] = 256
		s.GainAutoMult[i] = 16
		s.Route[i] = Route{Plus: uint8(i), Minus: protocol.GroundRoute}
	}
	for i := range protocol.NSpectra {
		s.Bitslice[i] = 0x1F
	}
	return s
}

// Default returns the instrument state as it is after boot.
func Default() *InstrumentState {
	s := &InstrumentState{}
	s.Reset()
	return s
}

// Reset restores the boot configuration in place. Packet ids keep counting and a
// burst already in flight completes.
func (s *InstrumentState) Reset() {
	nextID := s.NextPacketID
	cdi := s.CDI
	var dispatch Dispatch
	if s.Dispatch.InFlight {
		dispatch = s.Dispatch
	}

	*s = InstrumentState{
		Seq:          DefaultSequencerState(),
		Dispatch:     dispatch,
		HiFrac:       0xFF,
		ADCEnabled:   true,
		NextPacketID: nextID,
		CDI:          cdi,
		Calibrator:   Calibrator{BinEnd: protocol.NChannels, AntennaMask: 0x0F},
	}
	for i := range protocol.NInput {
		s.Base.ActualGain[i] = s.Seq.Gain[i]
	}
	s.Base.ActualBitslice = s.Seq.Bitslice
	for i := range protocol.NSeqMax {
		s.Program.Steps[i] = s.Seq
		s.Program.Dwell[i] = 1
	}
	s.UpdateDerived()
	s.SyncSequencer()
}

// freqDivisor maps Navgf to the number of bins merged into one. Navgf 3 averages by
// 4 while dropping every 4th bin.
var freqDivisor = [...]uint16{1: 1, 2: 2, 3: 4, 4: 8}

// FreqDivisor returns the bin reduction of a frequency-averaging setting, 0 if invalid.
func FreqDivisor(navgf uint8) uint16 {
	if int(navgf) >= len(freqDivisor) {
		return 0
	}
	return freqDivisor[navgf]
}

// UpdateDerived recomputes the values that follow from the active configuration.
func (s *InstrumentState) UpdateDerived() {
	s.Navg1 = 1 << s.Seq.Navg1Shift
	s.Navg2 = 1 << s.Seq.Navg2Shift
	s.TotalShift = s.Seq.Navg1Shift + s.Seq.Navg2Shift
	if d := FreqDivisor(s.Seq.Navgf); d > 0 {
		s.Nfreq = protocol.NChannels / d
	}
	for i := range protocol.NInput {
		ceil := uint32(s.Seq.GainAutoMin[i]) * uint32(s.Seq.GainAutoMult[i])
		if ceil > 0xFFFF {
			ceil = 0xFFFF
		}
		s.GainAutoMax[i] = uint16(ceil)
	}
}

// SyncSequencer mirrors the sequencer cursors into the base snapshot.
func (s *InstrumentState) SyncSequencer() {
	s.Base.SeqCount = s.Program.Count
	s.Base.SeqSubstep = s.Program.Substep
	s.Base.SeqRepeat = s.Program.Remaining
	if s.SequencerEnabled {
		s.Base.SeqStep = s.Program.Step
	} else {
		s.Base.SeqStep = 0xFF
	}
}

// Settling reports whether the instrument is inside a settle window.
func (s *InstrumentState) Settling() bool {
	return s.Settle > 0
}

// BeginSettle opens a settle window of n ticks, extending any window already open.
func (s *InstrumentState) BeginSettle(n uint16) {
	if n > s.Settle {
		s.Settle = n
	}
}

// DiscardAcquisition drops an acquisition dispatch that is still counting down.
func (s *InstrumentState) DiscardAcquisition() {
	if s.Dispatch.Pending && s.Dispatch.Acquisition && !s.Dispatch.InFlight {
		s.Dispatch = Dispatch{}
	}
}

// AllocPacketID returns the next unique packet id.
func (s *InstrumentState) AllocPacketID() uint32 {
	id := s.NextPacketID
	s.NextPacketID++
	return id
}
