package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

func newSequencer() (*Sequencer, *state.InstrumentState, *hal.MockSpectrometer) {
	st := state.Default()
	hw := &hal.MockSpectrometer{}
	return New(st, hw, protocol.ResettleDelay), st, hw
}

func TestEnable_Empty(t *testing.T) {
	q, st, _ := newSequencer()
	assert.ErrorIs(t, q.Enable(), ErrEmpty)
	assert.False(t, q.Running())
	assert.Equal(t, uint8(0xFF), st.Base.SeqStep)
}

func TestFiniteRun(t *testing.T) {
	q, st, _ := newSequencer()
	require.NoError(t, q.SetCycle(5))
	require.NoError(t, q.SetRepeat(1))
	require.NoError(t, q.Enable())
	assert.Equal(t, uint8(0), st.Base.SeqStep)

	for i := range 4 {
		assert.False(t, q.Tick(), "tick %d", i)
		assert.True(t, q.Running())
		assert.Equal(t, uint8(i+1), st.Base.SeqStep)
	}
	assert.True(t, q.Tick())
	assert.False(t, q.Running())
	assert.True(t, st.EOSPending)
	assert.Equal(t, uint8(0xFF), st.Base.SeqStep)
	assert.False(t, q.Tick())
}

func TestInfiniteRun(t *testing.T) {
	q, st, _ := newSequencer()
	require.NoError(t, q.SetCycle(2))
	require.NoError(t, q.Enable())

	for range 100 {
		assert.False(t, q.Tick())
	}
	assert.True(t, q.Running())
	assert.Equal(t, uint16(0), st.Program.Remaining)
	assert.False(t, st.EOSPending)
}

func TestDwell(t *testing.T) {
	q, st, hw := newSequencer()
	require.NoError(t, q.SetCycle(2))

	st.Seq.Gain[0] = state.GainHigh
	require.NoError(t, q.Store(3))
	st.Seq.Gain[0] = state.GainLow
	require.NoError(t, q.Store(2))
	assert.ErrorIs(t, q.Store(1), ErrFull)

	require.NoError(t, q.SetRepeat(2))
	require.NoError(t, q.Enable())
	assert.Equal(t, state.GainHigh, hw.Gains[0])
	assert.Equal(t, uint16(2), st.Program.Remaining)

	steps := []uint8{}
	for range 9 {
		q.Tick()
		steps = append(steps, st.Base.SeqStep)
		p := st.Program
		if q.Running() {
			assert.Less(t, p.Step, p.Count)
			assert.Less(t, p.Substep, p.Dwell[p.Step])
		}
	}
	assert.Equal(t, []uint8{0, 0, 1, 1, 0, 0, 0, 1, 1}, steps)
	assert.Equal(t, state.GainLow, hw.Gains[0])
	assert.Equal(t, uint16(1), st.Program.Remaining)

	assert.True(t, q.Tick())
	assert.False(t, q.Running())
}

func TestStepAppliesAndSettles(t *testing.T) {
	q, st, hw := newSequencer()
	require.NoError(t, q.SetCycle(2))
	st.Seq.Notch = 0
	require.NoError(t, q.Store(1))
	st.Seq.Notch = 3
	require.NoError(t, q.Store(1))
	require.NoError(t, q.Enable())
	st.Settle = 0

	q.Tick()
	assert.Equal(t, uint8(3), hw.Notch)
	assert.Equal(t, uint8(3), st.Seq.Notch)
	assert.Equal(t, uint16(protocol.ResettleDelay), st.Settle)
}

func TestEditsWhileRunning(t *testing.T) {
	q, st, _ := newSequencer()
	require.NoError(t, q.SetCycle(3))
	require.NoError(t, q.Enable())
	before := st.Program

	assert.ErrorIs(t, q.SetCycle(4), ErrRunning)
	assert.ErrorIs(t, q.SetRepeat(4), ErrRunning)
	assert.ErrorIs(t, q.Store(4), ErrRunning)
	assert.ErrorIs(t, q.Load(state.Program{}), ErrRunning)
	assert.Equal(t, before, st.Program)
}

func TestDisable_KeepsHardware(t *testing.T) {
	q, st, hw := newSequencer()
	require.NoError(t, q.SetCycle(3))
	require.NoError(t, q.Enable())
	q.Tick()
	st.Dispatch = state.Dispatch{AppID: protocol.AppIDMetaData, Pending: true, Acquisition: true}
	hw.ClearWrites()
	gains := hw.Gains

	q.Disable()
	assert.Zero(t, hw.Writes)
	assert.Equal(t, gains, hw.Gains)
	assert.False(t, st.Dispatch.Pending)
	assert.Equal(t, uint8(0xFF), st.Base.SeqStep)
}

func TestDisable_KeepsHousekeeping(t *testing.T) {
	q, st, _ := newSequencer()
	st.Dispatch = state.Dispatch{AppID: protocol.AppIDHousekeeping, Pending: true}
	q.Disable()
	assert.True(t, st.Dispatch.Pending)
}

func TestSetCycle_Range(t *testing.T) {
	q, _, _ := newSequencer()
	assert.ErrorIs(t, q.SetCycle(0), ErrBadProgram)
	assert.ErrorIs(t, q.SetCycle(33), ErrBadProgram)
	assert.NoError(t, q.SetCycle(32))
}

func TestLoad(t *testing.T) {
	q, st, _ := newSequencer()
	p := st.Program
	p.Count = 2
	p.Step = 1
	p.Dwell[1] = 0
	assert.ErrorIs(t, q.Load(p), ErrBadProgram)

	p.Dwell[1] = 4
	require.NoError(t, q.Load(p))
	assert.Equal(t, uint8(0), st.Program.Step)
	assert.Equal(t, uint8(2), st.Program.StoreCursor)
	assert.Equal(t, p.Steps, q.Program().Steps)
}
