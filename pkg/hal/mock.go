package hal

import (
	"fmt"
	"sync"

	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// Sent is one packet handed to a MockCDI.
type Sent struct {
	AppID   uint16
	Payload []byte
}

// MockCDI is an in-memory CDI. Commands are queued with Push and dispatched
// packets collected in Sent.
type MockCDI struct {
	mu       sync.Mutex
	commands []protocol.Command
	sent     []Sent
	blocks   int
	Busy     bool  // Ready reports false while set
	Err      error // returned by Dispatch when set
}

// Ensure MockCDI implements CDI.
var _ CDI = (*MockCDI)(nil)

// NewMockCDI creates an empty mock CDI.
func NewMockCDI() *MockCDI {
	return &MockCDI{}
}

// Push queues commands for NewCommand.
func (m *MockCDI) Push(cmds ...protocol.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmds...)
}

func (m *MockCDI) NewCommand() (protocol.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return protocol.Command{}, false
	}
	c := m.commands[0]
	m.commands = m.commands[1:]
	return c, true
}

func (m *MockCDI) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Busy
}

func (m *MockCDI) BlockUntilReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks++
	m.Busy = false
}

func (m *MockCDI) Dispatch(appID uint16, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, Sent{AppID: appID, Payload: append([]byte(nil), payload...)})
	return nil
}

// Sent returns all dispatched packets.
func (m *MockCDI) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// SentTo returns the packets dispatched under appID.
func (m *MockCDI) SentTo(appID uint16) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.AppID == appID {
			out = append(out, s)
		}
	}
	return out
}

// Blocks returns how many times BlockUntilReady was called.
func (m *MockCDI) Blocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocks
}

// MockSpectrometer records every setter call and serves canned readbacks.
type MockSpectrometer struct {
	Gains      [protocol.NInput]state.Gain
	Routes     [protocol.NInput]state.Route
	Avg1       uint8
	Bitslices  [protocol.NSpectra]uint8
	Notch      uint8
	Enabled    bool
	Writes     int // setter calls since the last ClearWrites
	Triggers   int
	Resets     int
	Stats      [protocol.NInput]state.ADCStat
	StatsReady bool
	Overflow   [2]uint16
	Seconds    uint32
	Subseconds uint16
	Sensors    [4]uint16
	Ready      bool
	Spectra    [protocol.NSpectra][]uint32
	Peaks      [protocol.NSpectra]uint32
}

// Ensure MockSpectrometer implements Spectrometer.
var _ Spectrometer = (*MockSpectrometer)(nil)

func (m *MockSpectrometer) SetGain(gains [protocol.NInput]state.Gain) {
	m.Gains = gains
	m.Writes++
}

func (m *MockSpectrometer) SetRoute(ch int, r state.Route) {
	m.Routes[ch] = r
	m.Writes++
}

func (m *MockSpectrometer) SetAvg1(shift uint8) {
	m.Avg1 = shift
	m.Writes++
}

func (m *MockSpectrometer) SetBitslice(prod int, slice uint8) {
	m.Bitslices[prod] = slice
	m.Writes++
}

func (m *MockSpectrometer) SetNotch(notch uint8) {
	m.Notch = notch
	m.Writes++
}

func (m *MockSpectrometer) SetSpectrometerEnable(on bool) {
	m.Enabled = on
	m.Writes++
}

// ClearWrites zeroes the setter counter.
func (m *MockSpectrometer) ClearWrites() {
	m.Writes = 0
}

func (m *MockSpectrometer) TriggerADCStat(int) {
	m.Triggers++
}

func (m *MockSpectrometer) ADCStat() ([protocol.NInput]state.ADCStat, bool) {
	if !m.StatsReady {
		return m.Stats, false
	}
	m.StatsReady = false
	return m.Stats, true
}

// PushStats makes stats available to the next ADCStat call.
func (m *MockSpectrometer) PushStats(stats [protocol.NInput]state.ADCStat) {
	m.Stats = stats
	m.StatsReady = true
}

func (m *MockSpectrometer) DigitalOverflow() (uint16, uint16) {
	return m.Overflow[0], m.Overflow[1]
}

func (m *MockSpectrometer) Time() (uint32, uint16) {
	return m.Seconds, m.Subseconds
}

func (m *MockSpectrometer) TVS() [4]uint16 {
	return m.Sensors
}

func (m *MockSpectrometer) SpectrumReady() bool {
	return m.Ready
}

func (m *MockSpectrometer) ClearSpectrumReady() {
	m.Ready = false
}

func (m *MockSpectrometer) Spectrum(prod int) []uint32 {
	return m.Spectra[prod]
}

func (m *MockSpectrometer) SpectrumPeaks() [protocol.NSpectra]uint32 {
	return m.Peaks
}

func (m *MockSpectrometer) Reset() {
	m.Resets++
}

// MemStore keeps slots in memory.
type MemStore struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// Ensure MemStore implements Store.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{slots: make(map[string][]byte)}
}

func (s *MemStore) Save(slot string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = append([]byte(nil), blob...)
	return nil
}

func (s *MemStore) Load(slot string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.slots[slot]
	if !ok {
		return nil, fmt.Errorf("slot %q: %w", slot, ErrNotStored)
	}
	return append([]byte(nil), b...), nil
}
