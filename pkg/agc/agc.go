// Package agc closes the loop on analog gain and on spectra bit-slicing.
package agc

import (
	"math/bits"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// outputBits is the width a sliced product must fit in.
const outputBits = 16

// Controller adjusts the realized gain of channels commanded to GainAuto and the
// slice of products marked protocol.BitsliceAuto.
type Controller struct {
	st     *state.InstrumentState
	hw     hal.Spectrometer
	settle uint16
}

// New creates a controller.
func New(st *state.InstrumentState, hw hal.Spectrometer, settle uint16) *Controller {
	return &Controller{st: st, hw: hw, settle: settle}
}

// Update records an ADC statistics snapshot and moves each automatic channel at most
// one gain step toward [min, min*mult]. A channel with clipped samples is too high
// whatever its valid peak. It reports whether any gain changed.
func (c *Controller) Update(stats [protocol.NInput]state.ADCStat) bool {
	c.st.Base.ADC = stats

	changed := false
	for ch := range protocol.NInput {
		if c.st.Seq.Gain[ch] != state.GainAuto {
			continue
		}
		peak := stats[ch].Peak()
		gain := c.st.Base.ActualGain[ch]
		switch {
		case peak > c.st.GainAutoMax[ch] || stats[ch].Clipped():
			c.st.Flag(protocol.AnalogAGCTooHigh)
			if gain > state.GainLow {
				gain--
			}
		case peak < c.st.Seq.GainAutoMin[ch]:
			c.st.Flag(protocol.AnalogAGCTooLow)
			if gain < state.GainHigh {
				gain++
			}
		}
		if gain != c.st.Base.ActualGain[ch] {
			c.st.Base.ActualGain[ch] = gain
			c.st.Flag(protocol.AGCAction(ch))
			changed = true
		}
	}

	if changed {
		c.hw.SetGain(c.st.Base.ActualGain)
		c.st.BeginSettle(c.settle)
	}
	return changed
}

// UpdateBitslice picks the slice of every automatic product from the peak bin of its
// last output cycle.
func (c *Controller) UpdateBitslice(peaks [protocol.NSpectra]uint32) {
	keep := int(c.st.Seq.BitsliceKeepBits)
	for p, peak := range peaks {
		if c.st.Seq.Bitslice[p] != protocol.BitsliceAuto {
			continue
		}
		slice := Slice(peak, keep)
		if slice != c.st.Base.ActualBitslice[p] {
			c.st.Base.ActualBitslice[p] = slice
			c.hw.SetBitslice(p, slice)
		}
	}
}

// Slice returns the number of low bits to drop so that peak fits in 16 bits while
// keeping at least keep significant bits.
func Slice(peak uint32, keep int) uint8 {
	n := bits.Len32(peak)
	s := min(n-outputBits, n-keep)
	return uint8(min(max(s, 0), 31))
}
