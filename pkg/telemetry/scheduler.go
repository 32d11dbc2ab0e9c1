// Package telemetry schedules downlink packets through the single pending-dispatch slot.
//
// At most one packet is queued at a time. A queued packet waits DispatchDelay ticks
// after the tick that accepted it before it is encoded and handed to the CDI. An
// acquisition dispatch is a metadata packet followed by one packet per spectra
// product, one per tick, all sharing the metadata's packet id and priority class.
// Heartbeats bypass the slot but are held back while an acquisition dispatch is
// pending.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/packet"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/state"
)

// ErrBusy is returned when a different AppID already holds the dispatch slot.
var ErrBusy = errors.New("dispatch slot busy")

// Housekeeping packet types.
const (
	HKFull uint8 = 0
	HKADC  uint8 = 1
)

// Scheduler owns the dispatch slot and the heartbeat counter in state.InstrumentState.
type Scheduler struct {
	st     *state.InstrumentState
	cdi    hal.CDI
	hw     hal.Spectrometer
	timing protocol.Timing
}

// New creates a scheduler.
func New(st *state.InstrumentState, cdi hal.CDI, hw hal.Spectrometer, timing protocol.Timing) *Scheduler {
	return &Scheduler{st: st, cdi: cdi, hw: hw, timing: timing}
}

// Pending reports whether the slot holds a packet.
func (s *Scheduler) Pending() bool {
	return s.st.Dispatch.Pending
}

// Request queues a packet for appID. A request for the AppID already queued is
// merged into it.
func (s *Scheduler) Request(appID uint16, hkType uint8) error {
	d := &s.st.Dispatch
	if d.Pending {
		if d.AppID == appID {
			return nil
		}
		return fmt.Errorf("%w: 0x%04X queued, 0x%04X requested", ErrBusy, d.AppID, appID)
	}
	*d = state.Dispatch{
		AppID:       appID,
		Countdown:   s.timing.DispatchDelay,
		Format:      s.st.Seq.Format,
		HKType:      hkType,
		Pending:     true,
		Acquisition: appID == protocol.AppIDMetaData,
	}
	return nil
}

// RequestAcquisition queues metadata followed by all spectra products.
func (s *Scheduler) RequestAcquisition() error {
	return s.Request(protocol.AppIDMetaData, 0)
}

// Hello sends the startup packet immediately.
func (s *Scheduler) Hello() error {
	s.refresh()
	return s.send(protocol.AppIDStart, packet.Hello{
		Header:          packet.NewHeader(s.st.AllocPacketID()),
		SoftwareVersion: protocol.SoftwareVersion,
		TimeSeconds:     s.st.Base.TimeSeconds,
		TimeSubseconds:  s.st.Base.TimeSubseconds,
	})
}

// Tick runs a whole scheduler tick for callers without other work in the tick.
func (s *Scheduler) Tick() error {
	s.Countdown()
	return s.Flush()
}

// Countdown advances the pending packet's countdown. It runs at the start of a tick,
// so a packet accepted later in the same tick starts counting on the next one.
func (s *Scheduler) Countdown() {
	d := &s.st.Dispatch
	if d.Pending && d.Countdown > 0 {
		d.Countdown--
	}
}

// Flush ends a tick: queue end-of-sequence, emit the pending packet once its
// countdown has run out, then the heartbeat.
func (s *Scheduler) Flush() error {
	var errs []error

	if s.st.EOSPending && !s.st.Dispatch.Pending {
		if err := s.Request(protocol.AppIDSequencerComplete, 0); err == nil {
			s.st.EOSPending = false
		}
	}

	if d := &s.st.Dispatch; d.Pending && d.Countdown == 0 {
		errs = append(errs, s.emit())
	}

	s.st.HeartbeatCounter++
	if s.st.HeartbeatCounter >= s.timing.HeartbeatDelay {
		if s.st.Dispatch.Pending && s.st.Dispatch.Acquisition {
			s.st.HeartbeatCounter = s.timing.HeartbeatDelay
		} else {
			s.st.HeartbeatCounter = 0
			errs = append(errs, s.heartbeat())
		}
	}
	return errors.Join(errs...)
}

// emit encodes and sends the pending packet, or the next part of an acquisition.
func (s *Scheduler) emit() error {
	d := &s.st.Dispatch
	s.refresh()

	switch {
	case d.AppID == protocol.AppIDMetaData:
		d.PacketID = s.st.AllocPacketID()
		err := s.send(d.AppID, packet.MetaData{
			Header: packet.NewHeader(d.PacketID),
			Seq:    s.st.Seq,
			Base:   s.st.Base,
		})
		d.AppID = protocol.SpectraAppID(s.priority(), 0)
		d.Product = 0
		d.InFlight = true
		s.st.Bursts++
		return err

	case protocol.IsSpectra(d.AppID):
		prod := int(d.Product)
		payload, err := packet.EncodeSpectrum(packet.SpectrumHeader{
			Header:  packet.NewHeader(d.PacketID),
			Product: d.Product,
			Format:  d.Format,
			Slice:   s.st.Base.ActualBitslice[prod],
		}, s.hw.Spectrum(prod))
		if err == nil {
			err = s.sendRaw(d.AppID, payload)
		}
		d.Product++
		if int(d.Product) >= protocol.NSpectra {
			*d = state.Dispatch{}
		} else {
			d.AppID = protocol.SpectraAppID(d.AppID&0xFFF0, int(d.Product))
		}
		return err
	}

	appID, hk := d.AppID, d.HKType
	*d = state.Dispatch{}

	id := s.st.AllocPacketID()
	switch appID {
	case protocol.AppIDHousekeeping:
		if hk == HKADC {
			return s.send(appID, packet.Housekeeping1{
				Header:     packet.NewHeader(id),
				HKType:     HKADC,
				ADC:        s.st.Base.ADC,
				ActualGain: s.st.Base.ActualGain,
			})
		}
		p := packet.Housekeeping0{Header: packet.NewHeader(id), HKType: HKFull, State: *s.st}
		s.st.ReadAndClearErrors()
		return s.send(appID, p)
	case protocol.AppIDSequencerComplete:
		return s.send(appID, packet.EndOfSequence{
			Header: packet.NewHeader(id),
			Count:  s.st.Program.Count,
			Repeat: s.st.Program.Repeat,
		})
	case protocol.AppIDStart:
		return s.send(appID, packet.Hello{
			Header:          packet.NewHeader(id),
			SoftwareVersion: protocol.SoftwareVersion,
			TimeSeconds:     s.st.Base.TimeSeconds,
			TimeSubseconds:  s.st.Base.TimeSubseconds,
		})
	case protocol.AppIDHeartbeat:
		return s.sendHeartbeat(id)
	}
	return fmt.Errorf("emit 0x%04X: %w", appID, packet.ErrUnknownAppID)
}

// priority picks the class of the next burst. Bursts rotate through 255 slots: the
// first HiFrac go out as high priority, the next MedFrac as medium, the rest as low.
func (s *Scheduler) priority() uint16 {
	slot := s.st.Bursts % 0xFF
	switch {
	case slot < uint32(s.st.HiFrac):
		return protocol.AppIDSpectraHigh
	case slot < uint32(s.st.HiFrac)+uint32(s.st.MedFrac):
		return protocol.AppIDSpectraMed
	}
	return protocol.AppIDSpectraLow
}

func (s *Scheduler) heartbeat() error {
	s.refresh()
	return s.sendHeartbeat(s.st.AllocPacketID())
}

func (s *Scheduler) sendHeartbeat(id uint32) error {
	return s.send(protocol.AppIDHeartbeat, packet.Heartbeat{
		Header:         packet.NewHeader(id),
		Count:          s.st.CDI.Packets,
		TimeSeconds:    s.st.Base.TimeSeconds,
		TimeSubseconds: s.st.Base.TimeSubseconds,
		TVS:            s.st.Base.TVS,
		CDI:            s.st.CDI,
		Errors:         s.st.Base.Errors,
		Magic:          packet.HeartbeatMagic(),
	})
}

func (s *Scheduler) send(appID uint16, v any) error {
	payload, err := packet.Encode(v)
	if err != nil {
		return err
	}
	return s.sendRaw(appID, payload)
}

func (s *Scheduler) sendRaw(appID uint16, payload []byte) error {
	s.cdi.BlockUntilReady()
	if err := s.cdi.Dispatch(appID, payload); err != nil {
		return fmt.Errorf("dispatch 0x%04X: %w", appID, err)
	}
	s.st.CDI.Packets++
	s.st.CDI.Bytes += uint64(len(payload))
	return nil
}

// refresh samples the readbacks that go into the base snapshot.
func (s *Scheduler) refresh() {
	b := &s.st.Base
	b.TimeSeconds, b.TimeSubseconds = s.hw.Time()
	b.TVS = s.hw.TVS()
	b.SpecOverflow, b.NotchOverflow = s.hw.DigitalOverflow()
}
