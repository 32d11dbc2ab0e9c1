// Package monitor decodes downlinked telemetry and keeps the recent history a ground
// display needs: per-channel ADC levels, temperature, error events and the latest
// spectra.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/coreloop/pkg/adcstat"
	"github.com/itohio/coreloop/pkg/config"
	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/packet"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sample"
	"github.com/itohio/coreloop/pkg/state"
)

// Packet is one raw downlinked packet.
type Packet struct {
	AppID   uint16
	Payload []byte
}

// Event is a nonzero error mask seen in telemetry.
type Event struct {
	Timestamp time.Time
	AppID     uint16
	Errors    protocol.ErrorMask
}

// Snapshot is a copy of the monitor state handed to callbacks.
type Snapshot struct {
	ADC         [protocol.NInput][]sample.Sample // ADC RMS in counts
	Temperature []sample.Sample                  // raw TVS temperature reading
	Events      []Event
	Spectra     [protocol.NSpectra][]float64 // latest product in dB
	Meta        *packet.MetaData
	Sequences   int // end-of-sequence packets seen
	Packets     int
	Rejected    int // packets that failed to decode
}

// Monitor consumes packets and keeps windowed history.
type Monitor struct {
	mu          sync.RWMutex
	adc         [protocol.NInput]*sample.Window
	temperature *sample.Window
	events      []Event
	maxEvents   int
	spectra     [protocol.NSpectra][]float64
	meta        *packet.MetaData
	now         time.Time // last instrument time seen
	sequences   int
	packets     int
	rejected    int

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex

	shutdown bool // set when the input channel closes, prevents further callbacks
}

// New creates a monitor keeping cfg.History samples per series.
func New(cfg *config.MonitorConfig) *Monitor {
	history := config.Default().Monitor.History
	if cfg != nil && cfg.History > 0 {
		history = cfg.History
	}
	m := &Monitor{
		temperature: sample.NewWindow(history),
		maxEvents:   history,
	}
	for ch := range m.adc {
		m.adc[ch] = sample.NewWindow(history)
	}
	return m
}

// ProcessPackets consumes packets until input closes. Callbacks stop once it does.
func (m *Monitor) ProcessPackets(input <-chan Packet) {
	for p := range input {
		if err := m.process(p.AppID, p.Payload); err != nil {
			logging.Logf("monitor: %v", err)
		}
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// Write processes one packet synchronously so the monitor can serve as a packet sink.
func (m *Monitor) Write(appID uint16, payload []byte) error {
	return m.process(appID, payload)
}

func (m *Monitor) process(appID uint16, payload []byte) error {
	v, err := packet.Parse(appID, payload)

	m.mu.Lock()
	m.packets++
	if err != nil {
		m.rejected++
		m.mu.Unlock()
		return fmt.Errorf("packet 0x%04X: %w", appID, err)
	}
	m.apply(appID, v)
	notify := !m.shutdown
	m.mu.Unlock()

	if notify {
		m.notifyCallbacks()
	}
	return nil
}

// apply folds a decoded packet into the history. Caller holds mu.
func (m *Monitor) apply(appID uint16, v any) {
	switch p := v.(type) {
	case packet.Hello:
		m.now = sample.InstrumentTime(p.TimeSeconds, p.TimeSubseconds)
	case packet.Heartbeat:
		m.now = sample.InstrumentTime(p.TimeSeconds, p.TimeSubseconds)
		m.addTemperature(p.TVS)
		m.addEvent(appID, p.Errors)
	case packet.Housekeeping0:
		base := p.State.Base
		m.now = sample.InstrumentTime(base.TimeSeconds, base.TimeSubseconds)
		m.addTemperature(base.TVS)
		m.addADC(base.ADC)
		m.addEvent(appID, base.Errors)
	case packet.Housekeeping1:
		m.addADC(p.ADC)
	case packet.MetaData:
		m.now = sample.InstrumentTime(p.Base.TimeSeconds, p.Base.TimeSubseconds)
		m.meta = &p
	case packet.Spectrum:
		if int(p.Product) < protocol.NSpectra {
			m.spectra[p.Product] = decibels(p.Data)
		}
	case packet.EndOfSequence:
		m.sequences++
	}
}

func (m *Monitor) addADC(stats [protocol.NInput]state.ADCStat) {
	for ch, s := range stats {
		if s.Valid == 0 {
			continue
		}
		m.adc[ch].Add(sample.Sample{Timestamp: m.now, Value: adcstat.RMS(s)})
	}
}

func (m *Monitor) addTemperature(tvs [4]uint16) {
	m.temperature.Add(sample.Sample{Timestamp: m.now, Value: float64(tvs[3])})
}

func (m *Monitor) addEvent(appID uint16, errs uint32) {
	if errs == 0 {
		return
	}
	m.events = append(m.events, Event{Timestamp: m.now, AppID: appID, Errors: protocol.ErrorMask(errs)})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// decibels converts bin powers to dB; empty bins map to 0 dB.
func decibels(data []uint32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		if v > 0 {
			out[i] = float64(10 * math32.Log10(float32(v)))
		}
	}
	return out
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Temperature: m.temperature.Samples(),
		Events:      append([]Event(nil), m.events...),
		Sequences:   m.sequences,
		Packets:     m.packets,
		Rejected:    m.rejected,
	}
	for ch, w := range m.adc {
		s.ADC[ch] = w.Samples()
	}
	for p, spec := range m.spectra {
		s.Spectra[p] = append([]float64(nil), spec...)
	}
	if m.meta != nil {
		meta := *m.meta
		s.Meta = &meta
	}
	return s
}

// OnUpdate registers a callback invoked after every decoded packet.
// The callback should copy data quickly and return as fast as possible.
func (m *Monitor) OnUpdate(callback func(Snapshot)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown allows callbacks again after ProcessPackets returned.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Monitor) notifyCallbacks() {
	snap := m.Snapshot()

	m.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}
