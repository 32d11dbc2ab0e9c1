package adcstat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    state.ADCStat
	}{
		{"empty", nil, state.ADCStat{}},
		{"single", []int16{-5}, state.ADCStat{Min: -5, Max: -5, Valid: 1, Mean: -5}},
		{"symmetric", []int16{-2, 2, -2, 2}, state.ADCStat{Min: -2, Max: 2, Valid: 4, Mean: 0, Var: 5}},
		{
			"invalid",
			[]int16{10, 8192, -8193, 20, 32767},
			state.ADCStat{Min: 10, Max: 20, Valid: 2, InvalidMax: 2, InvalidMin: 1, Mean: 15, Var: 50},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.samples))
		})
	}
}

func TestComputeAll(t *testing.T) {
	var in [protocol.NInput][]int16
	in[2] = []int16{100, -450}
	out := ComputeAll(in)
	assert.Equal(t, uint16(450), out[2].Peak())
	assert.Zero(t, out[0].Valid)
}

func TestRMS(t *testing.T) {
	assert.InDelta(t, 5.0, RMS(state.ADCStat{Mean: 3, Var: 16}), 1e-9)
}
