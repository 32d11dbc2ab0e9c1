package coreloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/packet"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
	"github.com/itohio/coreloop/pkg/telemetry"
)

type fixture struct {
	core *Core
	st   *state.InstrumentState
	cdi  *hal.MockCDI
	hw   *hal.MockSpectrometer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cdi := hal.NewMockCDI()
	hw := &hal.MockSpectrometer{}
	timing := protocol.DefaultTiming()
	timing.DispatchDelay = 2
	c := New(cdi, hw, hal.NewMemStore(), timing)
	require.NoError(t, c.Boot())
	return fixture{core: c, st: c.State(), cdi: cdi, hw: hw}
}

func (f fixture) ticks(n int) {
	for range n {
		f.core.Tick()
	}
}

func cmd(op protocol.Opcode, hi, lo uint8) protocol.Command {
	return protocol.Command{Opcode: op, ArgHi: hi, ArgLo: lo}
}

func TestBoot(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.cdi.SentTo(protocol.AppIDStart), 1)
	assert.Equal(t, 1, f.hw.Resets)
	assert.False(t, f.hw.Enabled)
	assert.Equal(t, uint8(0xFF), f.st.Base.SeqStep)
	assert.Equal(t, uint32(1), f.st.NextPacketID)
}

func TestOneCommandPerTick(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(cmd(protocol.OpAvgNotch, 0, 1), cmd(protocol.OpAvgNotch, 0, 2))

	f.ticks(1)
	assert.Equal(t, uint8(1), f.st.Seq.Notch)
	f.ticks(1)
	assert.Equal(t, uint8(2), f.st.Seq.Notch)
	assert.Equal(t, uint32(2), f.st.CDI.Commands)
}

func TestSequencerRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(
		cmd(protocol.OpSeqCycle, 0, 5),
		cmd(protocol.OpSeqRepeat, 0, 1),
		cmd(protocol.OpSeqEnable, 0, 1),
	)
	f.ticks(3)
	require.Equal(t, uint8(0), f.st.Base.SeqStep)

	f.ticks(4)
	assert.Equal(t, uint8(4), f.st.Base.SeqStep)
	f.ticks(1)
	assert.Equal(t, uint8(0xFF), f.st.Base.SeqStep)
	assert.Zero(t, f.st.Errors())

	f.ticks(3)
	eos := f.cdi.SentTo(protocol.AppIDSequencerComplete)
	require.Len(t, eos, 1)
	p, err := packet.Decode[packet.EndOfSequence](eos[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), p.Count)
	assert.Equal(t, uint16(1), p.Repeat)
}

func TestAutoGainStepsDown(t *testing.T) {
	f := newFixture(t)
	f.st.Seq.Gain[0] = state.GainAuto
	f.st.Seq.GainAutoMin[0] = 100
	f.st.Seq.GainAutoMult[0] = 4
	f.st.UpdateDerived()
	f.st.Settle = 0

	var stats [protocol.NInput]state.ADCStat
	stats[0] = state.ADCStat{Min: -450, Max: 120}
	for ch := 1; ch < protocol.NInput; ch++ {
		stats[ch] = state.ADCStat{Min: -200, Max: 200}
	}
	f.hw.PushStats(stats)
	f.ticks(1)

	assert.Equal(t, state.GainLow, f.st.Base.ActualGain[0])
	assert.Equal(t, state.GainLow, f.hw.Gains[0])
	assert.True(t, f.st.HasError(protocol.AnalogAGCTooHigh|protocol.AGCAction(0)))
	assert.True(t, f.st.Settling())
}

func TestADCStatsRetriggered(t *testing.T) {
	f := newFixture(t)
	f.ticks(2)
	assert.Equal(t, 1, f.hw.Triggers)
	f.ticks(1)
	assert.Equal(t, 1, f.hw.Triggers)

	f.hw.PushStats([protocol.NInput]state.ADCStat{})
	f.ticks(1)
	assert.Equal(t, 2, f.hw.Triggers)
}

func TestHousekeepingExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(cmd(0x08, 0, 0), cmd(protocol.OpHKReq, 0, 0), cmd(protocol.OpHKReq, 0, 0))
	f.ticks(20)

	hk := f.cdi.SentTo(protocol.AppIDHousekeeping)
	require.Len(t, hk, 1)
	v, err := packet.Parse(protocol.AppIDHousekeeping, hk[0].Payload)
	require.NoError(t, err)
	hk0 := v.(packet.Housekeeping0)
	assert.Equal(t, uint32(protocol.CDICommandUnknown), hk0.State.Base.Errors)
	assert.Zero(t, f.st.Errors())
}

func TestRangeADC_Housekeeping1(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(cmd(protocol.OpRangeADC, 0, 0))
	f.ticks(1)
	f.hw.PushStats([protocol.NInput]state.ADCStat{{Min: -7, Max: 9}})
	f.ticks(1)
	require.True(t, f.st.Dispatch.Pending)
	require.Equal(t, telemetry.HKADC, f.st.Dispatch.HKType)

	// same AppID, merged into the pending packet
	f.cdi.Push(cmd(protocol.OpHKReq, 0, 0))
	f.ticks(10)

	hk := f.cdi.SentTo(protocol.AppIDHousekeeping)
	require.Len(t, hk, 1)
	v, err := packet.Parse(protocol.AppIDHousekeeping, hk[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int16(9), v.(packet.Housekeeping1).ADC[0].Max)
	assert.Zero(t, f.st.Errors())
}

func TestAcquisition(t *testing.T) {
	f := newFixture(t)
	for i := range protocol.NSpectra {
		f.hw.Spectra[i] = []uint32{1, 2, uint32(i)}
		f.hw.Peaks[i] = 1 << 20
	}
	f.cdi.Push(cmd(protocol.OpStart, 0, 0), cmd(protocol.OpBitsliceAuto, 0, 16))
	f.ticks(4)
	f.hw.Ready = true

	f.ticks(1)
	assert.False(t, f.hw.Ready)
	assert.True(t, f.st.Dispatch.Acquisition)
	assert.Equal(t, uint8(5), f.st.Base.ActualBitslice[0])

	f.ticks(2 + protocol.NSpectra)
	assert.Len(t, f.cdi.SentTo(protocol.AppIDMetaData), 1)
	for i := range protocol.NSpectra {
		assert.Len(t, f.cdi.SentTo(protocol.SpectraAppID(protocol.AppIDSpectraHigh, i)), 1)
	}
	assert.False(t, f.st.Dispatch.Pending)
}

func spectraSent(f fixture) int {
	n := 0
	for _, p := range f.cdi.Sent() {
		if protocol.IsSpectra(p.AppID) {
			n++
		}
	}
	return n
}

// startBurst starts acquisition and ticks until the metadata of one burst is out.
func startBurst(t *testing.T, f fixture, cmds ...protocol.Command) {
	t.Helper()
	f.cdi.Push(append([]protocol.Command{cmd(protocol.OpStart, 0, 0)}, cmds...)...)
	f.ticks(1 + len(cmds) + int(protocol.ResettleDelay))
	require.False(t, f.st.Settling())
	f.hw.Ready = true
	for range 10 {
		f.ticks(1)
		if len(f.cdi.SentTo(protocol.AppIDMetaData)) > 0 {
			break
		}
	}
	require.Len(t, f.cdi.SentTo(protocol.AppIDMetaData), 1)
	require.Zero(t, spectraSent(f))
}

func TestAcquisition_CompletesAcrossStepBoundary(t *testing.T) {
	f := newFixture(t)
	f.st.Program.Count = 2
	f.st.Program.Dwell[0] = 6
	f.st.Program.Dwell[1] = 6

	startBurst(t, f, cmd(protocol.OpSeqEnable, 0, 1))
	step := f.st.Program.Step
	stepped := false
	for range protocol.NSpectra {
		f.ticks(1)
		stepped = stepped || f.st.Program.Step != step
	}

	require.True(t, stepped, "burst should straddle a step change")
	assert.Equal(t, protocol.NSpectra, spectraSent(f))
	assert.False(t, f.st.Dispatch.Pending)
}

func TestAcquisition_CompletesAfterStop(t *testing.T) {
	f := newFixture(t)
	startBurst(t, f)

	f.cdi.Push(cmd(protocol.OpStop, 0, 0))
	f.ticks(protocol.NSpectra)
	assert.False(t, f.st.Base.SpectrometerEnable)
	assert.Equal(t, protocol.NSpectra, spectraSent(f))
}

func TestAcquisition_DiscardedBeforeMetadata(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(cmd(protocol.OpStart, 0, 0))
	f.ticks(1 + int(protocol.ResettleDelay))
	f.hw.Ready = true
	f.ticks(1)
	require.True(t, f.st.Dispatch.Pending)

	f.cdi.Push(cmd(protocol.OpStop, 0, 0))
	f.ticks(30)
	assert.Empty(t, f.cdi.SentTo(protocol.AppIDMetaData))
	assert.Zero(t, spectraSent(f))
}

func TestHousekeeping_DelayCountsFromAcceptance(t *testing.T) {
	f := newFixture(t)
	f.cdi.Push(cmd(protocol.OpHKReq, 0, 1))

	f.ticks(1)
	require.True(t, f.st.Dispatch.Pending, "accepted on the first tick")
	f.ticks(1)
	assert.Empty(t, f.cdi.SentTo(protocol.AppIDHousekeeping))
	f.ticks(1)
	assert.Len(t, f.cdi.SentTo(protocol.AppIDHousekeeping), 1)
}

func TestSpectraDroppedWhileStopped(t *testing.T) {
	f := newFixture(t)
	f.hw.Ready = true
	f.ticks(1)
	assert.False(t, f.hw.Ready)
	assert.False(t, f.st.Dispatch.Pending)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ticks := make(chan time.Time, 3)
	for range 3 {
		ticks <- time.Now()
	}
	close(ticks)
	require.NoError(t, f.core.Run(context.Background(), ticks))
	assert.Equal(t, uint64(3), f.core.Ticks())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.core.Run(ctx, make(chan time.Time)), context.Canceled)
}
