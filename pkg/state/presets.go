package state

import "github.com/itohio/coreloop/pkg/protocol"

// TestPreset returns stored test configuration n.
func TestPreset(n uint8) (SequencerState, bool) {
	s := DefaultSequencerState()
	switch n {
	case 0:
		// boot configuration
	case 1:
		// all gains low, short averaging: quick look at the ADC chain
		for i := range protocol.NInput {
			s.Gain[i] = GainLow
		}
		s.Navg1Shift = 10
		s.Navg2Shift = 0
	case 2:
		// cross-routed inputs: A1-A2, A3-A4
		s.Route[0] = Route{Plus: 0, Minus: 1}
		s.Route[1] = Route{Plus: 1, Minus: protocol.GroundRoute}
		s.Route[2] = Route{Plus: 2, Minus: 3}
		s.Route[3] = Route{Plus: 3, Minus: protocol.GroundRoute}
	default:
		return SequencerState{}, false
	}
	return s, true
}

// SciencePreset returns stored science configuration n.
func SciencePreset(n uint8) (SequencerState, bool) {
	s := DefaultSequencerState()
	switch n {
	case 0:
		for i := range protocol.NInput {
			s.Gain[i] = GainAuto
		}
		for i := range protocol.NSpectra {
			s.Bitslice[i] = protocol.BitsliceAuto
		}
		s.Format = Output16BitUpdates
	case 1:
		for i := range protocol.NInput {
			s.Gain[i] = GainAuto
		}
		s.Notch = 2
		s.Navgf = 2
		s.Format = Output16BitFloat
	default:
		return SequencerState{}, false
	}
	return s, true
}
