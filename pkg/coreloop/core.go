// Package coreloop runs the flight core: one fixed-order pass over the components per
// timer tick.
//
// Each tick the settle window and the dispatch countdown run down, the sequencer
// advances, at most one command is executed, a finished ADC statistics run feeds the
// gain controller, a ready spectrum is queued for downlink, and finally the telemetry
// scheduler emits.
// Core is not safe for concurrent use; Tick is the only mutator.
package coreloop

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/coreloop/pkg/agc"
	"github.com/itohio/coreloop/pkg/command"
	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/sequencer"
	"github.com/itohio/coreloop/pkg/state"
	"github.com/itohio/coreloop/pkg/telemetry"
)

// Core owns the instrument state and the components acting on it.
type Core struct {
	st     *state.InstrumentState
	hw     hal.Spectrometer
	timing protocol.Timing

	seq *sequencer.Sequencer
	cmd *command.Interpreter
	agc *agc.Controller
	tm  *telemetry.Scheduler

	statsPending bool // an ADC statistics run was triggered by the loop
	hk1Due       bool // ADC housekeeping owed to a RANGE_ADC command
	ticks        uint64
}

// New wires a core over the hardware collaborators.
func New(cdi hal.CDI, hw hal.Spectrometer, store hal.Store, timing protocol.Timing) *Core {
	st := state.Default()
	c := &Core{
		st:     st,
		hw:     hw,
		timing: timing,
		seq:    sequencer.New(st, hw, timing.ResettleDelay),
		agc:    agc.New(st, hw, timing.ResettleDelay),
		tm:     telemetry.New(st, cdi, hw, timing),
	}
	c.cmd = command.New(st, command.Env{
		CDI:       cdi,
		HW:        hw,
		Store:     store,
		Sequencer: c.seq,
		Telemetry: c.tm,
		Timing:    timing,
	})
	return c
}

// State exposes the instrument state for inspection.
func (c *Core) State() *state.InstrumentState {
	return c.st
}

// Ticks returns the number of ticks run since boot.
func (c *Core) Ticks() uint64 {
	return c.ticks
}

// Execute runs a command directly, bypassing the CDI.
func (c *Core) Execute(cmd protocol.Command) error {
	return c.cmd.Execute(cmd)
}

// Boot brings the hardware to the default configuration and announces the start.
func (c *Core) Boot() error {
	c.hw.Reset()
	c.hw.SetSpectrometerEnable(false)
	sequencer.Configure(c.st, c.hw, c.timing.ResettleDelay)
	return c.tm.Hello()
}

// Tick runs one pass of the loop. Returned errors are informational: command faults
// are already in the error mask and transport failures do not stop the loop.
func (c *Core) Tick() error {
	var errs []error
	c.ticks++

	if c.st.Settle > 0 {
		c.st.Settle--
	}
	c.tm.Countdown()

	c.seq.Tick()

	if _, err := c.cmd.Poll(); err != nil {
		errs = append(errs, err)
	}

	c.adc()

	if err := c.spectra(); err != nil {
		errs = append(errs, err)
	}

	if err := c.tm.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// adc consumes a finished statistics run and starts the next one.
func (c *Core) adc() {
	if stats, ok := c.hw.ADCStat(); ok {
		c.statsPending = false
		if c.st.ADCEnabled && !c.st.Settling() {
			c.agc.Update(stats)
		} else {
			c.st.Base.ADC = stats
		}
		if c.st.RangeADCPending {
			c.st.RangeADCPending = false
			c.hk1Due = true
		}
	}

	if c.hk1Due {
		if err := c.tm.Request(protocol.AppIDHousekeeping, telemetry.HKADC); err == nil {
			c.hk1Due = false
		}
	}

	if c.st.ADCEnabled && !c.statsPending && !c.st.Settling() {
		c.hw.TriggerADCStat(c.timing.ADCStatSamples)
		c.statsPending = true
	}
}

// spectra queues a ready spectrum for downlink. Spectra integrated across a
// reconfiguration or while acquisition is stopped are dropped.
func (c *Core) spectra() error {
	if !c.hw.SpectrumReady() {
		return nil
	}
	if !c.st.Base.SpectrometerEnable || c.st.Settling() {
		c.hw.ClearSpectrumReady()
		return nil
	}
	if c.tm.Pending() {
		return nil
	}
	c.agc.UpdateBitslice(c.hw.SpectrumPeaks())
	c.hw.ClearSpectrumReady()
	return c.tm.RequestAcquisition()
}

// Run calls Tick for every event on ticks until ctx is done or ticks is closed.
func (c *Core) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := c.Tick(); err != nil {
				if command.IsFault(err) {
					logging.Debugf("coreloop: %v", err)
				} else {
					logging.Logf("coreloop: %v", err)
				}
			}
		}
	}
}
