// Package command decodes uplinked commands into actions and applies them to the
// instrument state.
//
// Decoding validates everything that can be checked from the command alone and yields
// exactly one Action per opcode. Applying checks what depends on the current mode.
package command

import (
	"errors"
	"fmt"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrBadArgs       = errors.New("argument out of range")
	ErrBadState      = errors.New("command not allowed now")
)

// Fault maps a decode or apply error to its error-mask bit.
func Fault(err error) protocol.ErrorMask {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUnknownOpcode):
		return protocol.CDICommandUnknown
	case errors.Is(err, ErrBadArgs):
		return protocol.CDICommandBadArgs
	}
	return protocol.CDICommandBad
}

// Action is one decoded command. The set of actions is closed.
type Action interface {
	action()
}

type (
	Stop         struct{}
	Start        struct{}
	Reset        struct{}
	StoreConfig  struct{}
	RecallConfig struct{}
	RangeADC     struct{}
	TimeToDie    struct{}
	LoadProgram  struct{}
	StoreProgram struct{}

	HKRequest struct{ Type uint8 }
	ADCEnable struct{ On bool }

	// Preset loads a stored test or science configuration.
	Preset struct {
		Science bool
		Index   uint8
	}

	GainSet      struct{ Gains [protocol.NInput]state.Gain }
	GainAutoMin  struct {
		Ch  int
		Min uint16
	}
	GainAutoMult struct {
		Ch   int
		Mult uint16
	}

	BitsliceSet struct {
		Product int
		Slice   uint8
	}
	// BitsliceAuto with KeepBits 0 freezes automatic products at their current slice.
	BitsliceAuto struct{ KeepBits uint8 }

	// RouteSet configures channels First and First+1.
	RouteSet struct {
		First  int
		Routes [2]state.Route
	}

	AvgSet struct {
		Shift1 uint8
		Shift2 uint8
	}
	Outlier      struct{ Level uint8 }
	FreqAvg      struct{ Navgf uint8 }
	Notch        struct{ Level uint8 }
	PriorityFrac struct {
		Med  bool // medium priority fraction, else high
		Frac uint8
	}
	FormatSet struct{ Format state.Format }

	// CalibratorSet and ZoomSet carry the opcode as the field selector.
	CalibratorSet struct {
		Field protocol.Opcode
		Value uint16
	}
	ZoomSet struct {
		Field protocol.Opcode
		Value uint16
	}

	SeqEnable struct{ On bool }
	SeqRepeat struct{ Count uint16 }
	SeqCycle  struct{ Count uint8 }
	SeqStore  struct{ Dwell uint16 }
)

func (Stop) action()          {}
func (Start) action()         {}
func (Reset) action()         {}
func (StoreConfig) action()   {}
func (RecallConfig) action()  {}
func (RangeADC) action()      {}
func (TimeToDie) action()     {}
func (LoadProgram) action()   {}
func (StoreProgram) action()  {}
func (HKRequest) action()     {}
func (ADCEnable) action()     {}
func (Preset) action()        {}
func (GainSet) action()       {}
func (GainAutoMin) action()   {}
func (GainAutoMult) action()  {}
func (BitsliceSet) action()   {}
func (BitsliceAuto) action()  {}
func (RouteSet) action()      {}
func (AvgSet) action()        {}
func (Outlier) action()       {}
func (FreqAvg) action()       {}
func (Notch) action()         {}
func (PriorityFrac) action()  {}
func (FormatSet) action()     {}
func (CalibratorSet) action() {}
func (ZoomSet) action()       {}
func (SeqEnable) action()     {}
func (SeqRepeat) action()     {}
func (SeqCycle) action()      {}
func (SeqStore) action()      {}

// Limits on command arguments.
const (
	MaxGainAutoMin  = 8192
	MaxNavg1Shift   = 14
	MaxKeepBits     = 32
	MaxFormat       = state.Output16BitFloat
	MaxAntennaMask  = 0x0F
	MaxZoomHighBits = (protocol.NChannels - 1) >> 8
)

func badArgs(c protocol.Command, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", c, ErrBadArgs, fmt.Sprintf(format, args...))
}

// Decode maps a command to its action.
func Decode(c protocol.Command) (Action, error) {
	arg, lo := c.Arg(), c.ArgLo

	switch c.Opcode {
	case protocol.OpStop:
		return Stop{}, nil
	case protocol.OpStart:
		return Start{}, nil
	case protocol.OpReset:
		return Reset{}, nil
	case protocol.OpStore:
		return StoreConfig{}, nil
	case protocol.OpRecall:
		return RecallConfig{}, nil
	case protocol.OpHKReq:
		if lo > 1 {
			return nil, badArgs(c, "housekeeping type %d", lo)
		}
		return HKRequest{Type: lo}, nil
	case protocol.OpADC:
		if lo > 1 {
			return nil, badArgs(c, "adc mode %d", lo)
		}
		return ADCEnable{On: lo == 1}, nil
	case protocol.OpRangeADC:
		return RangeADC{}, nil
	case protocol.OpTimeToDie:
		return TimeToDie{}, nil
	case protocol.OpTest:
		if _, ok := state.TestPreset(lo); !ok {
			return nil, badArgs(c, "no test preset %d", lo)
		}
		return Preset{Index: lo}, nil
	case protocol.OpScience:
		if _, ok := state.SciencePreset(lo); !ok {
			return nil, badArgs(c, "no science preset %d", lo)
		}
		return Preset{Science: true, Index: lo}, nil
	case protocol.OpLoadFlash:
		return LoadProgram{}, nil
	case protocol.OpStoreFlash:
		return StoreProgram{}, nil

	case protocol.OpGainSet:
		// two bits per channel from bit 2 up, as packed by the ground scripts
		var a GainSet
		for ch := range protocol.NInput {
			a.Gains[ch] = state.Gain(arg >> (2*ch + 2) & 3)
		}
		return a, nil
	case protocol.OpGainAutoMin:
		m := uint32(arg>>2) * 16
		if m > MaxGainAutoMin {
			return nil, badArgs(c, "auto gain min %d", m)
		}
		return GainAutoMin{Ch: int(arg & 3), Min: uint16(m)}, nil
	case protocol.OpGainAutoMult:
		m := arg >> 2
		if m == 0 {
			return nil, badArgs(c, "zero auto gain multiplier")
		}
		return GainAutoMult{Ch: int(arg & 3), Mult: m}, nil

	case protocol.OpBitsliceLow, protocol.OpBitsliceHigh:
		prod := int(lo & 7)
		if c.Opcode == protocol.OpBitsliceHigh {
			prod += 8
		}
		return BitsliceSet{Product: prod, Slice: lo >> 3}, nil
	case protocol.OpBitsliceAuto:
		if lo > MaxKeepBits {
			return nil, badArgs(c, "keep bits %d", lo)
		}
		return BitsliceAuto{KeepBits: lo}, nil

	case protocol.OpRoute12, protocol.OpRoute34:
		a := RouteSet{}
		if c.Opcode == protocol.OpRoute34 {
			a.First = 2
		}
		for i := range a.Routes {
			a.Routes[i] = decodeRoute(lo >> (4 * i) & 0x0F)
		}
		return a, nil

	case protocol.OpAvgSet:
		a := AvgSet{Shift1: lo & 0x0F, Shift2: lo >> 4}
		if a.Shift1 > MaxNavg1Shift {
			return nil, badArgs(c, "stage 1 shift %d", a.Shift1)
		}
		return a, nil
	case protocol.OpAvgOutlier:
		return Outlier{Level: lo}, nil
	case protocol.OpAvgFreq:
		if state.FreqDivisor(lo) == 0 {
			return nil, badArgs(c, "frequency averaging %d", lo)
		}
		return FreqAvg{Navgf: lo}, nil
	case protocol.OpAvgNotch:
		if lo > state.MaxNotch {
			return nil, badArgs(c, "notch %d", lo)
		}
		return Notch{Level: lo}, nil
	case protocol.OpAvgHiFrac, protocol.OpAvgMidFrac:
		return PriorityFrac{Med: c.Opcode == protocol.OpAvgMidFrac, Frac: lo}, nil
	case protocol.OpFormat:
		if state.Format(lo) > MaxFormat {
			return nil, badArgs(c, "format %d", lo)
		}
		return FormatSet{Format: state.Format(lo)}, nil

	case protocol.OpCalFrac, protocol.OpCalMax, protocol.OpCalLock, protocol.OpCalSNR:
		return CalibratorSet{Field: c.Opcode, Value: uint16(lo)}, nil
	case protocol.OpCalBinSt, protocol.OpCalBinEn:
		if arg > protocol.NChannels || (c.Opcode == protocol.OpCalBinSt && arg == protocol.NChannels) {
			return nil, badArgs(c, "calibrator bin %d", arg)
		}
		return CalibratorSet{Field: c.Opcode, Value: arg}, nil
	case protocol.OpCalAntMask:
		if lo > MaxAntennaMask {
			return nil, badArgs(c, "antenna mask 0x%X", lo)
		}
		return CalibratorSet{Field: c.Opcode, Value: uint16(lo)}, nil

	case protocol.OpZoomEn:
		if lo > 1 {
			return nil, badArgs(c, "zoom enable %d", lo)
		}
		return ZoomSet{Field: c.Opcode, Value: uint16(lo)}, nil
	case protocol.OpZoomSet1, protocol.OpZoomSet2:
		if lo >= protocol.NInput {
			return nil, badArgs(c, "zoom input %d", lo)
		}
		return ZoomSet{Field: c.Opcode, Value: uint16(lo)}, nil
	case protocol.OpZoom1Lo, protocol.OpZoom2Lo:
		return ZoomSet{Field: c.Opcode, Value: uint16(lo)}, nil
	case protocol.OpZoom1Hi, protocol.OpZoom2Hi:
		if lo > MaxZoomHighBits {
			return nil, badArgs(c, "zoom bin high bits %d", lo)
		}
		return ZoomSet{Field: c.Opcode, Value: uint16(lo)}, nil

	case protocol.OpSeqEnable:
		return SeqEnable{On: lo > 0}, nil
	case protocol.OpSeqRepeat:
		return SeqRepeat{Count: arg}, nil
	case protocol.OpSeqCycle:
		if arg == 0 || arg > protocol.NSeqMax {
			return nil, badArgs(c, "cycle length %d", arg)
		}
		return SeqCycle{Count: uint8(arg)}, nil
	case protocol.OpSeqStore:
		if arg == 0 {
			return nil, badArgs(c, "zero dwell")
		}
		return SeqStore{Dwell: arg}, nil
	}
	return nil, fmt.Errorf("%s: %w", c, ErrUnknownOpcode)
}

// decodeRoute unpacks a route nibble: plus in bits 3..2, minus in bits 1..0.
// Equal inputs mean the minus side is ground.
func decodeRoute(n uint8) state.Route {
	r := state.Route{Plus: n >> 2 & 3, Minus: n & 3}
	if r.Plus == r.Minus {
		r.Minus = protocol.GroundRoute
	}
	return r
}
