package command

import (
	"errors"
	"fmt"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/packet"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sequencer"
	"github.com/itohio/coreloop/pkg/state"
	"github.com/itohio/coreloop/pkg/telemetry"
)

// Env is what the interpreter acts on besides the state record.
type Env struct {
	CDI       hal.CDI
	HW        hal.Spectrometer
	Store     hal.Store
	Sequencer *sequencer.Sequencer
	Telemetry *telemetry.Scheduler
	Timing    protocol.Timing
}

// Interpreter polls the CDI for commands and applies them.
type Interpreter struct {
	st  *state.InstrumentState
	env Env
}

// New creates an interpreter.
func New(st *state.InstrumentState, env Env) *Interpreter {
	return &Interpreter{st: st, env: env}
}

// Poll takes at most one command from the CDI and executes it. It reports whether a
// command was taken; the error is informational, its fault bit is already set.
func (in *Interpreter) Poll() (bool, error) {
	c, ok := in.env.CDI.NewCommand()
	if !ok {
		return false, nil
	}
	return true, in.Execute(c)
}

// Execute decodes and applies one command. A failure leaves the state untouched
// except for the fault bit; only commands that decode are counted.
func (in *Interpreter) Execute(c protocol.Command) error {
	a, err := Decode(c)
	if err == nil {
		in.st.CDI.Commands++
		err = in.Apply(a)
		if err != nil {
			err = fmt.Errorf("%s: %w", c, err)
		}
	}
	if err != nil {
		in.st.Flag(Fault(err))
	}
	return err
}

func badState(err error) error {
	return fmt.Errorf("%w: %w", ErrBadState, err)
}

// Apply performs a decoded action.
func (in *Interpreter) Apply(a Action) error {
	st := in.st
	seq := in.env.Sequencer

	switch a := a.(type) {
	case Stop:
		st.Base.SpectrometerEnable = false
		in.env.HW.SetSpectrometerEnable(false)
		st.DiscardAcquisition()
	case Start:
		st.Base.SpectrometerEnable = true
		in.env.HW.SetSpectrometerEnable(true)
	case Reset:
		st.Reset()
		in.env.HW.Reset()
		in.env.HW.SetSpectrometerEnable(false)
		in.configure()
	case StoreConfig:
		return in.save(hal.SlotConfig, st.Seq)
	case RecallConfig:
		if seq.Running() {
			return badState(sequencer.ErrRunning)
		}
		cfg, err := load[state.SequencerState](in, hal.SlotConfig)
		if err != nil {
			return err
		}
		st.Seq = cfg
		in.configure()
	case HKRequest:
		if err := in.env.Telemetry.Request(protocol.AppIDHousekeeping, a.Type); err != nil {
			return badState(err)
		}
	case ADCEnable:
		st.ADCEnabled = a.On
	case RangeADC:
		st.RangeADCPending = true
		in.env.HW.TriggerADCStat(in.env.Timing.ADCStatSamples)
	case TimeToDie:
		st.TimeToDie = true
	case Preset:
		if seq.Running() {
			return badState(sequencer.ErrRunning)
		}
		if a.Science {
			st.Seq, _ = state.SciencePreset(a.Index)
		} else {
			st.Seq, _ = state.TestPreset(a.Index)
		}
		in.configure()
	case LoadProgram:
		if seq.Running() {
			return badState(sequencer.ErrRunning)
		}
		p, err := load[state.Program](in, hal.SlotProgram)
		if err != nil {
			return err
		}
		if err := seq.Load(p); err != nil {
			return badState(err)
		}
	case StoreProgram:
		return in.save(hal.SlotProgram, seq.Program())

	case GainSet:
		st.Seq.Gain = a.Gains
		in.configure()
	case GainAutoMin:
		if uint32(a.Min)*uint32(st.Seq.GainAutoMult[a.Ch]) > 0xFFFF {
			return fmt.Errorf("%w: min %d times mult %d", ErrBadArgs, a.Min, st.Seq.GainAutoMult[a.Ch])
		}
		st.Seq.GainAutoMin[a.Ch] = a.Min
		st.UpdateDerived()
	case GainAutoMult:
		if uint32(a.Mult)*uint32(st.Seq.GainAutoMin[a.Ch]) > 0xFFFF {
			return fmt.Errorf("%w: min %d times mult %d", ErrBadArgs, st.Seq.GainAutoMin[a.Ch], a.Mult)
		}
		st.Seq.GainAutoMult[a.Ch] = a.Mult
		st.UpdateDerived()

	case BitsliceSet:
		st.Seq.Bitslice[a.Product] = a.Slice
		in.configure()
	case BitsliceAuto:
		for p, b := range st.Seq.Bitslice {
			switch {
			case a.KeepBits > 0:
				st.Seq.Bitslice[p] = protocol.BitsliceAuto
			case b == protocol.BitsliceAuto:
				st.Seq.Bitslice[p] = st.Base.ActualBitslice[p]
			}
		}
		if a.KeepBits > 0 {
			st.Seq.BitsliceKeepBits = a.KeepBits
		}

	case RouteSet:
		for i, r := range a.Routes {
			st.Seq.Route[a.First+i] = r
		}
		in.configure()
	case AvgSet:
		st.Seq.Navg1Shift = a.Shift1
		st.Seq.Navg2Shift = a.Shift2
		in.configure()
	case Outlier:
		st.RejectLevel = a.Level
	case FreqAvg:
		st.Seq.Navgf = a.Navgf
		st.UpdateDerived()
	case Notch:
		st.Seq.Notch = a.Level
		in.configure()
	case PriorityFrac:
		other := st.HiFrac
		if !a.Med {
			other = st.MedFrac
		}
		if int(a.Frac)+int(other) > 0xFF {
			return fmt.Errorf("%w: priority fractions %d + %d", ErrBadArgs, a.Frac, other)
		}
		if a.Med {
			st.MedFrac = a.Frac
		} else {
			st.HiFrac = a.Frac
		}
	case FormatSet:
		st.Seq.Format = a.Format

	case CalibratorSet:
		return in.calibrator(a)
	case ZoomSet:
		in.zoom(a)

	case SeqEnable:
		if !a.On {
			seq.Disable()
			return nil
		}
		if err := seq.Enable(); err != nil {
			return badState(err)
		}
	case SeqRepeat:
		if err := seq.SetRepeat(a.Count); err != nil {
			return badState(err)
		}
	case SeqCycle:
		if err := seq.SetCycle(a.Count); err != nil {
			return badState(err)
		}
	case SeqStore:
		if err := seq.Store(a.Dwell); err != nil {
			return badState(err)
		}

	default:
		return fmt.Errorf("%w: %T", ErrUnknownOpcode, a)
	}
	return nil
}

func (in *Interpreter) configure() {
	sequencer.Configure(in.st, in.env.HW, in.env.Timing.ResettleDelay)
}

func (in *Interpreter) calibrator(a CalibratorSet) error {
	cal := &in.st.Calibrator
	switch a.Field {
	case protocol.OpCalFrac:
		cal.Frac = uint8(a.Value)
	case protocol.OpCalMax:
		cal.MaxDrift = uint8(a.Value)
	case protocol.OpCalLock:
		cal.LockDrift = uint8(a.Value)
	case protocol.OpCalSNR:
		cal.SNR = uint8(a.Value)
	case protocol.OpCalBinSt:
		if a.Value >= cal.BinEnd {
			return fmt.Errorf("%w: calibrator start %d past end %d", ErrBadArgs, a.Value, cal.BinEnd)
		}
		cal.BinStart = a.Value
	case protocol.OpCalBinEn:
		if a.Value <= cal.BinStart {
			return fmt.Errorf("%w: calibrator end %d before start %d", ErrBadArgs, a.Value, cal.BinStart)
		}
		cal.BinEnd = a.Value
	case protocol.OpCalAntMask:
		cal.AntennaMask = uint8(a.Value)
	}
	return nil
}

func (in *Interpreter) zoom(a ZoomSet) {
	z := &in.st.Zoom
	switch a.Field {
	case protocol.OpZoomEn:
		z.Enable = a.Value == 1
	case protocol.OpZoomSet1:
		z.Input[0] = uint8(a.Value)
	case protocol.OpZoomSet2:
		z.Input[1] = uint8(a.Value)
	case protocol.OpZoom1Lo:
		z.Bin[0] = z.Bin[0]&0xFF00 | a.Value
	case protocol.OpZoom2Lo:
		z.Bin[1] = z.Bin[1]&0xFF00 | a.Value
	case protocol.OpZoom1Hi:
		z.Bin[0] = z.Bin[0]&0x00FF | a.Value<<8
	case protocol.OpZoom2Hi:
		z.Bin[1] = z.Bin[1]&0x00FF | a.Value<<8
	}
}

func (in *Interpreter) save(slot string, v any) error {
	blob, err := packet.Encode(v)
	if err != nil {
		return err
	}
	if err := in.env.Store.Save(slot, blob); err != nil {
		return badState(err)
	}
	return nil
}

func load[T any](in *Interpreter, slot string) (T, error) {
	var v T
	blob, err := in.env.Store.Load(slot)
	if err != nil {
		return v, badState(err)
	}
	v, err = packet.Decode[T](blob)
	if err != nil {
		return v, badState(err)
	}
	return v, nil
}

// IsFault reports whether err came from command handling rather than the transport.
func IsFault(err error) bool {
	return errors.Is(err, ErrUnknownOpcode) || errors.Is(err, ErrBadArgs) || errors.Is(err, ErrBadState)
}
