// Package sequencer cycles the spectrometer through a stored program of configurations.
//
// The sequencer is either disabled or running at (step, substep) with some repeats
// left. Every tick advances the substep; when a step's dwell has elapsed the next
// step is applied to the hardware. A finite run stops itself and raises the
// end-of-sequence flag for the telemetry scheduler.
package sequencer

import (
	"errors"
	"fmt"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

var (
	ErrRunning    = errors.New("sequencer running")
	ErrEmpty      = errors.New("sequencer program is empty")
	ErrFull       = errors.New("sequencer program is full")
	ErrBadProgram = errors.New("invalid sequencer program")
)

// Sequencer drives state.Program. It holds no state of its own.
type Sequencer struct {
	st     *state.InstrumentState
	hw     hal.Spectrometer
	settle uint16
}

// New creates a sequencer over the instrument state.
func New(st *state.InstrumentState, hw hal.Spectrometer, settle uint16) *Sequencer {
	return &Sequencer{st: st, hw: hw, settle: settle}
}

// Running reports whether a program is being executed.
func (q *Sequencer) Running() bool {
	return q.st.SequencerEnabled
}

// Enable starts the program from step 0. Enabling a running sequencer does nothing.
func (q *Sequencer) Enable() error {
	p := &q.st.Program
	if p.Count == 0 {
		return ErrEmpty
	}
	if q.st.SequencerEnabled {
		return nil
	}
	q.st.SequencerEnabled = true
	p.Step = 0
	p.Substep = 0
	p.Remaining = p.Repeat
	q.enter()
	return nil
}

// Disable stops the program. The hardware keeps its current configuration; pending
// acquisition telemetry is discarded.
func (q *Sequencer) Disable() {
	q.st.SequencerEnabled = false
	q.st.Program.Substep = 0
	q.st.DiscardAcquisition()
	q.st.SyncSequencer()
}

// SetRepeat sets how many times the program cycles, 0 meaning forever.
func (q *Sequencer) SetRepeat(n uint16) error {
	if q.Running() {
		return ErrRunning
	}
	q.st.Program.Repeat = n
	q.st.SyncSequencer()
	return nil
}

// SetCycle sets the number of steps and rewinds every cursor.
func (q *Sequencer) SetCycle(n uint8) error {
	if q.Running() {
		return ErrRunning
	}
	if n == 0 || n > protocol.NSeqMax {
		return fmt.Errorf("%w: %d steps", ErrBadProgram, n)
	}
	p := &q.st.Program
	p.Count = n
	p.StoreCursor = 0
	p.Step = 0
	p.Substep = 0
	q.st.SyncSequencer()
	return nil
}

// Store saves the active configuration as the next step of the program.
func (q *Sequencer) Store(dwell uint16) error {
	if q.Running() {
		return ErrRunning
	}
	if dwell == 0 {
		return fmt.Errorf("%w: zero dwell", ErrBadProgram)
	}
	p := &q.st.Program
	if p.StoreCursor >= p.Count {
		return ErrFull
	}
	p.Steps[p.StoreCursor] = q.st.Seq
	p.Dwell[p.StoreCursor] = dwell
	p.StoreCursor++
	return nil
}

// Program returns a copy of the stored program.
func (q *Sequencer) Program() state.Program {
	return q.st.Program
}

// Load replaces the stored program and rewinds its cursors.
func (q *Sequencer) Load(p state.Program) error {
	if q.Running() {
		return ErrRunning
	}
	if p.Count > protocol.NSeqMax {
		return fmt.Errorf("%w: %d steps", ErrBadProgram, p.Count)
	}
	for i := range p.Count {
		if p.Dwell[i] == 0 {
			return fmt.Errorf("%w: step %d has zero dwell", ErrBadProgram, i)
		}
	}
	p.Step = 0
	p.Substep = 0
	p.Remaining = 0
	p.StoreCursor = p.Count
	q.st.Program = p
	q.st.SyncSequencer()
	return nil
}

// Tick advances the program by one tick. It reports true when a finite run
// completed on this tick.
func (q *Sequencer) Tick() bool {
	if !q.st.SequencerEnabled {
		return false
	}
	p := &q.st.Program
	p.Substep++
	if p.Substep < p.Dwell[p.Step] {
		q.st.SyncSequencer()
		return false
	}

	p.Substep = 0
	p.Step++
	if p.Step >= p.Count {
		p.Step = 0
		if p.Repeat != 0 {
			p.Remaining--
			if p.Remaining == 0 {
				q.st.SequencerEnabled = false
				q.st.EOSPending = true
				q.st.DiscardAcquisition()
				q.st.SyncSequencer()
				return true
			}
		}
	}
	q.enter()
	return false
}

// enter applies the current step to the hardware.
func (q *Sequencer) enter() {
	q.st.Seq = q.st.Program.Steps[q.st.Program.Step]
	Configure(q.st, q.hw, q.settle)
	q.st.DiscardAcquisition()
	q.st.SyncSequencer()
}

// Configure writes the active configuration to the hardware and opens a settle
// window. Channels and products under automatic control keep their realized values.
func Configure(st *state.InstrumentState, hw hal.Spectrometer, settle uint16) {
	for i, g := range st.Seq.Gain {
		if g != state.GainAuto {
			st.Base.ActualGain[i] = g
		}
	}
	hw.SetGain(st.Base.ActualGain)
	for i, r := range st.Seq.Route {
		hw.SetRoute(i, r)
	}
	hw.SetAvg1(st.Seq.Navg1Shift)
	for i, b := range st.Seq.Bitslice {
		if b != protocol.BitsliceAuto {
			st.Base.ActualBitslice[i] = b
		}
		hw.SetBitslice(i, st.Base.ActualBitslice[i])
	}
	hw.SetNotch(st.Seq.Notch)
	st.UpdateDerived()
	st.BeginSettle(settle)
}
