package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sequencer"
	"github.com/itohio/coreloop/pkg/state"
	"github.com/itohio/coreloop/pkg/telemetry"
)

type fixture struct {
	in    *Interpreter
	st    *state.InstrumentState
	cdi   *hal.MockCDI
	hw    *hal.MockSpectrometer
	store *hal.MemStore
	seq   *sequencer.Sequencer
}

func newFixture() fixture {
	st := state.Default()
	cdi := hal.NewMockCDI()
	hw := &hal.MockSpectrometer{}
	store := hal.NewMemStore()
	timing := protocol.DefaultTiming()
	seq := sequencer.New(st, hw, timing.ResettleDelay)
	in := New(st, Env{
		CDI:       cdi,
		HW:        hw,
		Store:     store,
		Sequencer: seq,
		Telemetry: telemetry.New(st, cdi, hw, timing),
		Timing:    timing,
	})
	return fixture{in: in, st: st, cdi: cdi, hw: hw, store: store, seq: seq}
}

func cmd(op protocol.Opcode, hi, lo uint8) protocol.Command {
	return protocol.Command{Opcode: op, ArgHi: hi, ArgLo: lo}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
		want Action
	}{
		{"stop", cmd(protocol.OpStop, 0, 0), Stop{}},
		{"hk adc", cmd(protocol.OpHKReq, 0, 1), HKRequest{Type: 1}},
		{"adc on", cmd(protocol.OpADC, 0, 1), ADCEnable{On: true}},
		{"science", cmd(protocol.OpScience, 0, 1), Preset{Science: true, Index: 1}},
		{"gain", cmd(protocol.OpGainSet, 0b11, 0b10_01_00_00), GainSet{Gains: [4]state.Gain{state.GainLow, state.GainMed, state.GainHigh, state.GainAuto}}},
		{"agc min", cmd(protocol.OpGainAutoMin, 0, 25<<2|2), GainAutoMin{Ch: 2, Min: 400}},
		{"agc mult", cmd(protocol.OpGainAutoMult, 0, 4<<2|3), GainAutoMult{Ch: 3, Mult: 4}},
		{"bitslice low", cmd(protocol.OpBitsliceLow, 0, 20<<3|5), BitsliceSet{Product: 5, Slice: 20}},
		{"bitslice high", cmd(protocol.OpBitsliceHigh, 0, 31<<3|7), BitsliceSet{Product: 15, Slice: 31}},
		{"bitslice auto", cmd(protocol.OpBitsliceAuto, 0, 12), BitsliceAuto{KeepBits: 12}},
		{"route 12", cmd(protocol.OpRoute12, 0, 0b0101_0110), RouteSet{First: 0, Routes: [2]state.Route{{Plus: 1, Minus: 2}, {Plus: 1, Minus: protocol.GroundRoute}}}},
		{"route 34", cmd(protocol.OpRoute34, 0, 0b1111_1000), RouteSet{First: 2, Routes: [2]state.Route{{Plus: 2, Minus: 0}, {Plus: 3, Minus: protocol.GroundRoute}}}},
		{"avg", cmd(protocol.OpAvgSet, 0, 0x3E), AvgSet{Shift1: 14, Shift2: 3}},
		{"freq", cmd(protocol.OpAvgFreq, 0, 4), FreqAvg{Navgf: 4}},
		{"notch", cmd(protocol.OpAvgNotch, 0, 4), Notch{Level: 4}},
		{"mid frac", cmd(protocol.OpAvgMidFrac, 0, 100), PriorityFrac{Med: true, Frac: 100}},
		{"format", cmd(protocol.OpFormat, 0, 2), FormatSet{Format: state.Output16BitFloat}},
		{"cal bin end", cmd(protocol.OpCalBinEn, 0x08, 0x00), CalibratorSet{Field: protocol.OpCalBinEn, Value: 2048}},
		{"zoom hi", cmd(protocol.OpZoom2Hi, 0, 7), ZoomSet{Field: protocol.OpZoom2Hi, Value: 7}},
		{"seq enable", cmd(protocol.OpSeqEnable, 0, 1), SeqEnable{On: true}},
		{"seq repeat", cmd(protocol.OpSeqRepeat, 0x01, 0x02), SeqRepeat{Count: 0x0102}},
		{"seq cycle", cmd(protocol.OpSeqCycle, 0, 32), SeqCycle{Count: 32}},
		{"seq store", cmd(protocol.OpSeqStore, 0x10, 0), SeqStore{Dwell: 0x1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Decode(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestDecode_AllKnownOpcodes(t *testing.T) {
	for op := range 256 {
		_, err := Decode(cmd(protocol.Opcode(op), 0, 1))
		if protocol.Opcode(op).Known() {
			assert.NotErrorIs(t, err, ErrUnknownOpcode, "opcode 0x%02X", op)
		} else {
			assert.ErrorIs(t, err, ErrUnknownOpcode, "opcode 0x%02X", op)
		}
	}
}

func TestDecode_BadArgs(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
	}{
		{"hk type", cmd(protocol.OpHKReq, 0, 2)},
		{"adc", cmd(protocol.OpADC, 0, 2)},
		{"test preset", cmd(protocol.OpTest, 0, 200)},
		{"agc min", cmd(protocol.OpGainAutoMin, 0x08, 0x04)},
		{"agc mult zero", cmd(protocol.OpGainAutoMult, 0, 3)},
		{"keep bits", cmd(protocol.OpBitsliceAuto, 0, 33)},
		{"avg shift", cmd(protocol.OpAvgSet, 0, 0x0F)},
		{"freq zero", cmd(protocol.OpAvgFreq, 0, 0)},
		{"freq five", cmd(protocol.OpAvgFreq, 0, 5)},
		{"notch", cmd(protocol.OpAvgNotch, 0, 5)},
		{"format", cmd(protocol.OpFormat, 0, 3)},
		{"cal start", cmd(protocol.OpCalBinSt, 0x08, 0x00)},
		{"cal end", cmd(protocol.OpCalBinEn, 0x08, 0x01)},
		{"ant mask", cmd(protocol.OpCalAntMask, 0, 0x10)},
		{"zoom input", cmd(protocol.OpZoomSet1, 0, 4)},
		{"zoom hi", cmd(protocol.OpZoom1Hi, 0, 8)},
		{"cycle zero", cmd(protocol.OpSeqCycle, 0, 0)},
		{"cycle 33", cmd(protocol.OpSeqCycle, 0, 33)},
		{"dwell zero", cmd(protocol.OpSeqStore, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.cmd)
			assert.ErrorIs(t, err, ErrBadArgs)
			assert.Equal(t, protocol.CDICommandBadArgs, Fault(err))
		})
	}
}

func TestExecute_UnknownOpcode(t *testing.T) {
	f := newFixture()
	before := *f.st

	err := f.in.Execute(cmd(0x08, 1, 2))
	require.ErrorIs(t, err, ErrUnknownOpcode)

	assert.Equal(t, protocol.CDICommandUnknown, f.st.Errors())
	after := *f.st
	after.Base.Errors = before.Base.Errors
	assert.Equal(t, before, after)
}

func TestExecute_BadArgsLeavesState(t *testing.T) {
	f := newFixture()
	// mult 200 on channel 0
	require.NoError(t, f.in.Execute(cmd(protocol.OpGainAutoMult, 0x03, 0x20)))
	before := f.st.Seq

	// min 2048 on channel 0
	err := f.in.Execute(cmd(protocol.OpGainAutoMin, 0x02, 0x00))
	require.ErrorIs(t, err, ErrBadArgs)
	assert.Equal(t, before, f.st.Seq)
	assert.True(t, f.st.HasError(protocol.CDICommandBadArgs))
	assert.Equal(t, uint32(1), f.st.CDI.Commands)
}

func TestPoll(t *testing.T) {
	f := newFixture()
	ok, err := f.in.Poll()
	assert.False(t, ok)
	assert.NoError(t, err)

	f.cdi.Push(cmd(protocol.OpStart, 0, 0), cmd(protocol.OpStop, 0, 0))
	ok, err = f.in.Poll()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.True(t, f.st.Base.SpectrometerEnable)
	assert.True(t, f.hw.Enabled)
	assert.Equal(t, uint32(1), f.st.CDI.Commands)

	ok, _ = f.in.Poll()
	assert.True(t, ok)
	assert.False(t, f.st.Base.SpectrometerEnable)
}

func TestSequencer_EnableEmpty(t *testing.T) {
	f := newFixture()
	f.st.Program.Count = 0
	err := f.in.Execute(cmd(protocol.OpSeqEnable, 0, 1))
	assert.ErrorIs(t, err, ErrBadState)
	assert.Equal(t, protocol.CDICommandBad, f.st.Errors())
	assert.False(t, f.seq.Running())
}

func TestSequencer_RunAndReject(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqCycle, 0, 5)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqRepeat, 0, 1)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqEnable, 0, 1)))
	require.True(t, f.seq.Running())

	for _, c := range []protocol.Command{
		cmd(protocol.OpSeqCycle, 0, 3),
		cmd(protocol.OpSeqRepeat, 0, 3),
		cmd(protocol.OpSeqStore, 0, 3),
		cmd(protocol.OpRecall, 0, 0),
		cmd(protocol.OpLoadFlash, 0, 0),
		cmd(protocol.OpTest, 0, 1),
	} {
		err := f.in.Execute(c)
		assert.ErrorIs(t, err, ErrBadState, c.String())
	}
	assert.Equal(t, protocol.CDICommandBad, f.st.Errors())
	assert.Equal(t, uint8(5), f.st.Program.Count)

	for range 5 {
		f.seq.Tick()
	}
	assert.False(t, f.seq.Running())
	assert.True(t, f.st.EOSPending)

	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqEnable, 0, 0)))
}

func TestSequencer_StoreSteps(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqCycle, 0, 2)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgNotch, 0, 2)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqStore, 0, 10)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgNotch, 0, 4)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqStore, 0, 20)))

	err := f.in.Execute(cmd(protocol.OpSeqStore, 0, 30))
	assert.ErrorIs(t, err, ErrBadState)

	assert.Equal(t, uint8(2), f.st.Program.Steps[0].Notch)
	assert.Equal(t, uint8(4), f.st.Program.Steps[1].Notch)
	assert.Equal(t, uint16(20), f.st.Program.Dwell[1])
}

func TestDisable_PreservesHardware(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqCycle, 0, 2)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqEnable, 0, 1)))
	f.hw.ClearWrites()

	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqEnable, 0, 0)))
	assert.Zero(t, f.hw.Writes)
	assert.Equal(t, uint8(0xFF), f.st.Base.SeqStep)
}

func TestGainSet(t *testing.T) {
	f := newFixture()
	f.st.Base.ActualGain[3] = state.GainHigh
	// L H L A, ch0 at bits 3..2 up to ch3 at bits 9..8
	require.NoError(t, f.in.Execute(cmd(protocol.OpGainSet, 0b11, 0b00_10_00_00)))

	assert.Equal(t, [4]state.Gain{state.GainLow, state.GainHigh, state.GainLow, state.GainAuto}, f.st.Seq.Gain)
	assert.Equal(t, [4]state.Gain{state.GainLow, state.GainHigh, state.GainLow, state.GainHigh}, f.st.Base.ActualGain)
	assert.Equal(t, f.st.Base.ActualGain, f.hw.Gains)
	assert.True(t, f.st.Settling())
}

func TestGainAuto(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpGainAutoMin, 0, 25<<2|1)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpGainAutoMult, 0, 4<<2|1)))
	assert.Equal(t, uint16(400), f.st.Seq.GainAutoMin[1])
	assert.Equal(t, uint16(1600), f.st.GainAutoMax[1])
}

func TestBitsliceAuto(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpBitsliceAuto, 0, 10)))
	for _, b := range f.st.Seq.Bitslice {
		assert.Equal(t, protocol.BitsliceAuto, b)
	}
	assert.Equal(t, uint8(10), f.st.Seq.BitsliceKeepBits)

	f.st.Base.ActualBitslice[4] = 7
	require.NoError(t, f.in.Execute(cmd(protocol.OpBitsliceAuto, 0, 0)))
	assert.Equal(t, uint8(7), f.st.Seq.Bitslice[4])
	assert.Equal(t, uint8(10), f.st.Seq.BitsliceKeepBits)

	require.NoError(t, f.in.Execute(cmd(protocol.OpBitsliceLow, 0, 3<<3|4)))
	assert.Equal(t, uint8(3), f.hw.Bitslices[4])
}

func TestAveraging(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgSet, 0, 0x2A)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgFreq, 0, 2)))

	assert.Equal(t, uint8(10), f.hw.Avg1)
	assert.Equal(t, uint16(1024), f.st.Navg1)
	assert.Equal(t, uint16(4), f.st.Navg2)
	assert.Equal(t, uint8(12), f.st.TotalShift)
	assert.Equal(t, uint16(1024), f.st.Nfreq)
}

func TestPriorityFrac(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgHiFrac, 0, 200)))
	err := f.in.Execute(cmd(protocol.OpAvgMidFrac, 0, 56))
	assert.ErrorIs(t, err, ErrBadArgs)
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgMidFrac, 0, 55)))
	assert.Equal(t, uint8(55), f.st.MedFrac)
}

func TestCalibratorAndZoom(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpCalBinEn, 0x01, 0x00)))
	err := f.in.Execute(cmd(protocol.OpCalBinSt, 0x01, 0x00))
	assert.ErrorIs(t, err, ErrBadArgs)
	require.NoError(t, f.in.Execute(cmd(protocol.OpCalBinSt, 0x00, 0x80)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpCalAntMask, 0, 0x05)))
	assert.Equal(t, state.Calibrator{BinStart: 0x80, BinEnd: 0x100, AntennaMask: 5}, f.st.Calibrator)

	require.NoError(t, f.in.Execute(cmd(protocol.OpZoomEn, 0, 1)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpZoomSet2, 0, 3)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpZoom2Lo, 0, 0x34)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpZoom2Hi, 0, 0x07)))
	assert.Equal(t, state.Zoom{Enable: true, Input: [2]uint8{0, 3}, Bin: [2]uint16{0, 0x0734}}, f.st.Zoom)
}

func TestStoreRecall(t *testing.T) {
	f := newFixture()
	err := f.in.Execute(cmd(protocol.OpRecall, 0, 0))
	assert.ErrorIs(t, err, ErrBadState)
	assert.ErrorIs(t, err, hal.ErrNotStored)

	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgNotch, 0, 3)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpStore, 0, 0)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgNotch, 0, 1)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpRecall, 0, 0)))
	assert.Equal(t, uint8(3), f.st.Seq.Notch)
	assert.Equal(t, uint8(3), f.hw.Notch)
}

func TestFlashProgram(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqCycle, 0, 3)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqStore, 0, 9)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpStoreFlash, 0, 0)))
	saved := f.st.Program

	require.NoError(t, f.in.Execute(cmd(protocol.OpSeqCycle, 0, 1)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpLoadFlash, 0, 0)))
	assert.Equal(t, saved.Count, f.st.Program.Count)
	assert.Equal(t, uint16(9), f.st.Program.Dwell[0])
	assert.Equal(t, uint8(3), f.st.Program.StoreCursor)
}

func TestHousekeepingRequest(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpHKReq, 0, 0)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpHKReq, 0, 0)))
	assert.Equal(t, protocol.AppIDHousekeeping, f.st.Dispatch.AppID)

	f.st.Dispatch.AppID = protocol.AppIDSequencerComplete
	err := f.in.Execute(cmd(protocol.OpHKReq, 0, 1))
	assert.ErrorIs(t, err, ErrBadState)
	assert.Equal(t, protocol.AppIDSequencerComplete, f.st.Dispatch.AppID)
}

func TestRangeADCAndFlags(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.in.Execute(cmd(protocol.OpRangeADC, 0, 0)))
	assert.True(t, f.st.RangeADCPending)
	assert.Equal(t, 1, f.hw.Triggers)

	require.NoError(t, f.in.Execute(cmd(protocol.OpADC, 0, 0)))
	assert.False(t, f.st.ADCEnabled)
	require.NoError(t, f.in.Execute(cmd(protocol.OpTimeToDie, 0, 0)))
	assert.True(t, f.st.TimeToDie)
}

func TestReset(t *testing.T) {
	f := newFixture()
	f.st.AllocPacketID()
	require.NoError(t, f.in.Execute(cmd(protocol.OpAvgNotch, 0, 3)))
	require.NoError(t, f.in.Execute(cmd(protocol.OpHKReq, 0, 0)))
	f.st.Flag(protocol.AnalogAGCTooLow)

	require.NoError(t, f.in.Execute(cmd(protocol.OpReset, 0, 0)))
	assert.Equal(t, uint8(0), f.st.Seq.Notch)
	assert.False(t, f.st.Dispatch.Pending)
	assert.Zero(t, f.st.Errors())
	assert.Equal(t, uint32(1), f.st.NextPacketID)
	assert.Equal(t, 1, f.hw.Resets)
}

func TestFault(t *testing.T) {
	assert.Zero(t, Fault(nil))
	assert.True(t, IsFault(badState(sequencer.ErrRunning)))
	assert.False(t, IsFault(hal.ErrNotStored))
}
