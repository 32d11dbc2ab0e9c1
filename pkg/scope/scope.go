// Package scope is a Fyne widget that plots monitor snapshots: ADC level history or
// the latest spectra.
package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/coreloop/pkg/monitor"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sample"
)

// Mode selects what the scope plots.
type Mode int

const (
	ModeADC Mode = iota
	ModeSpectra
)

// Trace is one plotted line.
type Trace struct {
	Name  string
	Color color.Color
	X, Y  []float64
}

// Marker is a vertical line with a label, used for error events.
type Marker struct {
	X     float64
	Label string
}

// Palette used for channels and products.
var Palette = []color.Color{
	color.RGBA{R: 255, G: 165, B: 0, A: 255},
	color.RGBA{R: 100, G: 200, B: 255, A: 255},
	color.RGBA{R: 120, G: 220, B: 120, A: 255},
	color.RGBA{R: 230, G: 100, B: 200, A: 255},
}

// ScopeWidget is a custom Fyne widget that displays telemetry plots.
type ScopeWidget struct {
	widget.BaseWidget

	mu       sync.RWMutex
	mode     Mode
	products []int // spectra products shown in ModeSpectra
	traces   []Trace
	markers  []Marker
	xLabel   func(float64) string
	yLabel   func(float64) string

	xMin, xMax float64
	yMin, yMax float64

	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New() *ScopeWidget {
	s := &ScopeWidget{
		products:         []int{0, 1, 2, 3},
		maxDisplayPoints: 1000,
		xLabel:           formatSeconds,
		yLabel:           formatCounts,
	}
	s.ExtendBaseWidget(s)
	s.updateAutoScale()
	s.Refresh()
	return s
}

// SetMode switches between ADC history and spectra.
func (s *ScopeWidget) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// SetProducts selects the spectra products plotted in ModeSpectra.
func (s *ScopeWidget) SetProducts(products ...int) {
	s.mu.Lock()
	s.products = products
	s.mu.Unlock()
}

// UpdateData replaces the plotted data from a monitor snapshot.
// This should be called from the monitor callback using fyne.Do().
func (s *ScopeWidget) UpdateData(snap monitor.Snapshot) {
	s.mu.Lock()
	switch s.mode {
	case ModeSpectra:
		s.traces, s.markers = SpectraTraces(snap, s.products, s.maxDisplayPoints), nil
		s.xLabel, s.yLabel = formatBin, formatDecibels
	default:
		s.traces, s.markers = ADCTraces(snap, s.maxDisplayPoints)
		s.xLabel, s.yLabel = formatSeconds, formatCounts
	}
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// ADCTraces builds one trace per input channel with time relative to the oldest
// sample, plus markers for error events in that span.
func ADCTraces(snap monitor.Snapshot, maxPoints int) ([]Trace, []Marker) {
	var origin float64
	first := true
	for _, ch := range snap.ADC {
		if len(ch) > 0 {
			t := unixSeconds(ch[0])
			if first || t < origin {
				origin, first = t, false
			}
		}
	}

	traces := make([]Trace, 0, protocol.NInput)
	for ch, series := range snap.ADC {
		series = sample.Downsample(nil, series, maxPoints)
		tr := Trace{
			Name:  "ch" + formatInt(int64(ch+1)),
			Color: Palette[ch%len(Palette)],
			X:     make([]float64, len(series)),
			Y:     make([]float64, len(series)),
		}
		for i, smp := range series {
			tr.X[i] = unixSeconds(smp) - origin
			tr.Y[i] = smp.Value
		}
		traces = append(traces, tr)
	}

	var markers []Marker
	for _, e := range snap.Events {
		x := unixSeconds(sample.Sample{Timestamp: e.Timestamp}) - origin
		if x < 0 {
			continue
		}
		markers = append(markers, Marker{X: x, Label: e.Errors.String()})
	}
	return traces, markers
}

// SpectraTraces builds one trace per selected product, block averaged to maxPoints.
func SpectraTraces(snap monitor.Snapshot, products []int, maxPoints int) []Trace {
	traces := make([]Trace, 0, len(products))
	for i, p := range products {
		if p < 0 || p >= protocol.NSpectra || len(snap.Spectra[p]) == 0 {
			continue
		}
		spec := snap.Spectra[p]
		y := sample.BlockAverage(nil, spec, maxPoints)
		step := float64(len(spec)) / float64(len(y))
		tr := Trace{
			Name:  "p" + formatInt(int64(p)),
			Color: Palette[i%len(Palette)],
			X:     make([]float64, len(y)),
			Y:     y,
		}
		for j := range tr.X {
			tr.X[j] = float64(j) * step
		}
		traces = append(traces, tr)
	}
	return traces
}

func unixSeconds(s sample.Sample) float64 {
	return float64(s.Timestamp.UnixNano()) / 1e9
}

// updateAutoScale calculates axis ranges from current traces. Caller holds mu.
func (s *ScopeWidget) updateAutoScale() {
	first := true
	for _, tr := range s.traces {
		for i := range tr.X {
			if first {
				s.xMin, s.xMax, s.yMin, s.yMax = tr.X[i], tr.X[i], tr.Y[i], tr.Y[i]
				first = false
				continue
			}
			s.xMin = min(s.xMin, tr.X[i])
			s.xMax = max(s.xMax, tr.X[i])
			s.yMin = min(s.yMin, tr.Y[i])
			s.yMax = max(s.yMax, tr.Y[i])
		}
	}
	if first {
		s.xMin, s.xMax, s.yMin, s.yMax = 0, 10, 0, 1
		return
	}
	if s.xMax == s.xMin {
		s.xMax = s.xMin + 1
	}

	// Add 10% margin
	span := s.yMax - s.yMin
	if span == 0 {
		span = 1
	}
	s.yMin -= span * 0.1
	s.yMax += span * 0.1
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
