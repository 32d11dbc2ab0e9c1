// Package emulator is a software spectrometer for host runs of the core loop.
//
// It models the analog chain coarsely: each input carries Gaussian noise whose
// level depends on the commanded route and gain, the ADC clips at 14 bits, and the
// correlator integrates a smooth band-limited spectrum. Time advances only through
// Advance, once per core tick.
package emulator

import (
	"math"
	"math/rand"
	"sync"

	"github.com/chewxy/math32"

	"github.com/itohio/coreloop/pkg/adcstat"
	"github.com/itohio/coreloop/pkg/config"
	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// Gain factor of each analog gain setting relative to medium.
var gainFactor = [...]float32{
	state.GainLow:  0.125,
	state.GainMed:  1,
	state.GainHigh: 8,
	state.GainAuto: 1,
}

const maxBin = float32(math.MaxUint32)

// Spectrometer implements hal.Spectrometer in software.
type Spectrometer struct {
	cfg *config.EmulatorConfig
	rng *rand.Rand

	mu        sync.Mutex
	gains     [protocol.NInput]state.Gain
	routes    [protocol.NInput]state.Route
	avg1      uint8
	bitslice  [protocol.NSpectra]uint8
	notch     uint8
	enabled   bool
	ticks     uint64
	tickHz    uint32
	statLeft  int
	statN     int
	stats     [protocol.NInput]state.ADCStat
	statReady bool
	specLeft  int
	spectra   [protocol.NSpectra][]uint32
	peaks     [protocol.NSpectra]uint32
	overflow  uint16
	ready     bool
}

// Ensure Spectrometer implements hal.Spectrometer.
var _ hal.Spectrometer = (*Spectrometer)(nil)

// New creates an emulated spectrometer. tickHz is the core tick rate used for the
// time readback.
func New(cfg *config.EmulatorConfig, tickHz uint32) *Spectrometer {
	if cfg == nil {
		cfg = &config.Default().Emulator
	}
	if tickHz == 0 {
		tickHz = 100
	}
	s := &Spectrometer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		tickHz: tickHz,
	}
	s.reset()
	return s
}

func (s *Spectrometer) reset() {
	for i := range protocol.NInput {
		s.gains[i] = state.GainMed
		s.routes[i] = state.Route{Plus: uint8(i), Minus: protocol.GroundRoute}
	}
	s.avg1 = 14
	s.notch = 0
	s.enabled = false
	s.statLeft = 0
	s.statReady = false
	s.ready = false
	s.overflow = 0
	s.specLeft = s.cycleTicks()
}

// Advance moves emulated time by one tick.
func (s *Spectrometer) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	if s.statLeft > 0 {
		s.statLeft--
		if s.statLeft == 0 {
			s.stats = adcstat.ComputeAll(s.sampleADC(s.statN))
			s.statReady = true
		}
	}
	if !s.enabled {
		return
	}
	s.specLeft--
	if s.specLeft <= 0 {
		s.integrate()
		s.specLeft = s.cycleTicks()
	}
}

// cycleTicks is the spectrum period, which scales with stage 1 averaging.
func (s *Spectrometer) cycleTicks() int {
	n := s.cfg.SpectrumTicks
	if s.avg1 < 14 {
		n >>= 14 - s.avg1
	} else {
		n <<= s.avg1 - 14
	}
	return max(n, 1)
}

// inputRMS is the RMS in ADC counts seen by channel ch.
func (s *Spectrometer) inputRMS(ch int) float32 {
	r := s.routes[ch]
	level := func(in uint8) float32 {
		if int(in) >= len(s.cfg.Level) {
			return 0
		}
		return s.cfg.Level[in]
	}
	v := level(r.Plus)
	if !r.SingleEnded() {
		m := level(r.Minus)
		v = math32.Sqrt(v*v + m*m)
	}
	v *= gainFactor[s.gains[ch]&3]
	return math32.Sqrt(v*v + s.cfg.Noise*s.cfg.Noise)
}

func (s *Spectrometer) sampleADC(n int) [protocol.NInput][]int16 {
	var out [protocol.NInput][]int16
	for ch := range protocol.NInput {
		rms := s.inputRMS(ch)
		buf := make([]int16, n)
		for i := range buf {
			v := math32.Round(float32(s.rng.NormFloat64()) * rms)
			buf[i] = int16(math32.Max(-32768, math32.Min(32767, v)))
		}
		out[ch] = buf
	}
	return out
}

// integrate produces one averaged spectrum for all products: 4 auto-correlations
// followed by the real and imaginary parts of the 6 cross-correlations.
func (s *Spectrometer) integrate() {
	var rms [protocol.NInput]float32
	for ch := range rms {
		rms[ch] = s.inputRMS(ch)
	}
	navg := float32(uint32(1) << s.avg1)
	notch := float32(1)
	if s.notch > 0 {
		notch = 1 / math32.Pow(4, float32(s.notch))
	}

	s.overflow = 0
	for p := range protocol.NSpectra {
		a, b, imag := product(p)
		amp := rms[a] * rms[b] * s.cfg.SpectrumLevel * navg
		if a != b {
			amp *= 0.1
			if imag {
				amp *= 0.5
			}
		}
		bins := make([]uint32, protocol.NChannels)
		var peak uint32
		for k := range bins {
			x := float32(k) / protocol.NChannels
			shape := math32.Exp(-x*3) * (1 + 0.2*math32.Sin(x*40))
			jitter := 1 + 0.01*float32(s.rng.NormFloat64())
			v := amp * shape * jitter * notchShape(x, notch)
			switch {
			case v >= maxBin:
				bins[k] = math.MaxUint32
				s.overflow |= 1 << p
			case v > 0:
				bins[k] = uint32(v)
			}
			peak = max(peak, bins[k])
		}
		s.spectra[p] = bins
		s.peaks[p] = peak
	}
	s.ready = true
}

// notchShape suppresses a narrow band around the calibration tone.
func notchShape(x, depth float32) float32 {
	if depth == 1 {
		return 1
	}
	d := math32.Abs(x - 0.25)
	if d < 0.002 {
		return depth
	}
	return 1
}

// product maps a product index to the channel pair it correlates.
func product(p int) (a, b int, imag bool) {
	if p < protocol.NInput {
		return p, p, false
	}
	pairs := [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	i := (p - protocol.NInput) / 2
	return pairs[i][0], pairs[i][1], (p-protocol.NInput)%2 == 1
}

func (s *Spectrometer) SetGain(gains [protocol.NInput]state.Gain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = gains
}

func (s *Spectrometer) SetRoute(ch int, r state.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[ch] = r
}

func (s *Spectrometer) SetAvg1(shift uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avg1 = shift
	s.specLeft = s.cycleTicks()
}

func (s *Spectrometer) SetBitslice(prod int, slice uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitslice[prod] = slice
}

func (s *Spectrometer) SetNotch(notch uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notch = notch
}

func (s *Spectrometer) SetSpectrometerEnable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on && !s.enabled {
		s.specLeft = s.cycleTicks()
	}
	s.enabled = on
}

func (s *Spectrometer) TriggerADCStat(samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statN = samples
	s.statLeft = max(s.cfg.StatTicks, 1)
	s.statReady = false
}

func (s *Spectrometer) ADCStat() ([protocol.NInput]state.ADCStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.statReady {
		return s.stats, false
	}
	s.statReady = false
	return s.stats, true
}

func (s *Spectrometer) DigitalOverflow() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow, 0
}

func (s *Spectrometer) Time() (uint32, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.ticks / uint64(s.tickHz)
	frac := (s.ticks % uint64(s.tickHz)) << 16 / uint64(s.tickHz)
	return uint32(sec), uint16(frac)
}

// TVS reports fixed rails and a slowly swinging temperature.
func (s *Spectrometer) TVS() [4]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := float32(s.ticks) / float32(s.tickHz)
	temp := 2980 + 20*math32.Sin(2*math32.Pi*t/5400)
	return [4]uint16{1000, 1800, 2500, uint16(temp)}
}

func (s *Spectrometer) SpectrumReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Spectrometer) ClearSpectrumReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
}

func (s *Spectrometer) Spectrum(prod int) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.spectra[prod]...)
}

func (s *Spectrometer) SpectrumPeaks() [protocol.NSpectra]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peaks
}

func (s *Spectrometer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}
