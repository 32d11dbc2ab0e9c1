// Package adcstat reduces raw ADC sample runs to the statistics record reported in
// housekeeping and used by the gain controller.
package adcstat

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// The ADC is 14 bit; codes outside this range are counted as invalid.
const (
	ValidMin = -8192
	ValidMax = 8191
)

// Compute summarizes one channel's samples. Min, max, mean and variance cover valid
// samples only.
func Compute(samples []int16) state.ADCStat {
	var s state.ADCStat
	valid := make([]float64, 0, len(samples))
	for _, v := range samples {
		switch {
		case v > ValidMax:
			s.InvalidMax++
			continue
		case v < ValidMin:
			s.InvalidMin++
			continue
		}
		if len(valid) == 0 || v < s.Min {
			s.Min = v
		}
		if len(valid) == 0 || v > s.Max {
			s.Max = v
		}
		valid = append(valid, float64(v))
	}
	s.Valid = uint32(len(valid))
	if len(valid) == 0 {
		return s
	}

	mean, variance := stat.MeanVariance(valid, nil)
	s.Mean = int32(math.Round(mean))
	if len(valid) > 1 && variance > 0 {
		s.Var = uint64(math.Round(variance))
	}
	return s
}

// ComputeAll summarizes every channel.
func ComputeAll(samples [protocol.NInput][]int16) [protocol.NInput]state.ADCStat {
	var out [protocol.NInput]state.ADCStat
	for ch, s := range samples {
		out[ch] = Compute(s)
	}
	return out
}

// RMS returns the root mean square of a channel from its statistics.
func RMS(s state.ADCStat) float64 {
	m := float64(s.Mean)
	return math.Sqrt(float64(s.Var) + m*m)
}
