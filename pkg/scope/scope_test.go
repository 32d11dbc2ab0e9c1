package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/coreloop/pkg/monitor"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sample"
)

func TestADCTraces(t *testing.T) {
	t0 := time.Unix(100, 0)
	var snap monitor.Snapshot
	snap.ADC[0] = []sample.Sample{{Timestamp: t0.Add(time.Second), Value: 10}, {Timestamp: t0.Add(2 * time.Second), Value: 12}}
	snap.ADC[3] = []sample.Sample{{Timestamp: t0, Value: 5}}
	snap.Events = []monitor.Event{
		{Timestamp: t0.Add(-time.Second), Errors: protocol.CDICommandBad},
		{Timestamp: t0.Add(2 * time.Second), Errors: protocol.CDICommandUnknown},
	}

	traces, markers := ADCTraces(snap, 100)
	require.Len(t, traces, protocol.NInput)
	assert.Equal(t, "ch1", traces[0].Name)
	assert.Equal(t, []float64{1, 2}, traces[0].X)
	assert.Equal(t, []float64{10, 12}, traces[0].Y)
	assert.Empty(t, traces[1].X)
	assert.Equal(t, []float64{0}, traces[3].X)

	require.Len(t, markers, 1, "events before the oldest sample are dropped")
	assert.Equal(t, 2.0, markers[0].X)
	assert.Equal(t, "CDI_COMMAND_UNKNOWN", markers[0].Label)
}

func TestSpectraTraces(t *testing.T) {
	var snap monitor.Snapshot
	snap.Spectra[2] = []float64{1, 3, 5, 7}

	traces := SpectraTraces(snap, []int{0, 2, 99}, 2)
	require.Len(t, traces, 1, "empty and invalid products are skipped")
	assert.Equal(t, "p2", traces[0].Name)
	assert.Equal(t, []float64{2, 6}, traces[0].Y)
	assert.Equal(t, []float64{0, 2}, traces[0].X)
}

func TestAutoScale(t *testing.T) {
	s := &ScopeWidget{}
	s.updateAutoScale()
	assert.Equal(t, [4]float64{0, 10, 0, 1}, [4]float64{s.xMin, s.xMax, s.yMin, s.yMax})

	s.traces = []Trace{{X: []float64{0, 4}, Y: []float64{10, 20}}}
	s.updateAutoScale()
	assert.Equal(t, 0.0, s.xMin)
	assert.Equal(t, 4.0, s.xMax)
	assert.InDelta(t, 9.0, s.yMin, 1e-9)
	assert.InDelta(t, 21.0, s.yMax, 1e-9)
}
