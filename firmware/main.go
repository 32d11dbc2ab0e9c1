//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware runs the flight core on a XIAO board against the software
// spectrometer. Command frames arrive on the UART and packets leave on it as
// telemetry frames, so the board speaks the same serial protocol as the host link.
package main

import (
	"machine"
	"time"

	"github.com/itohio/coreloop/pkg/cdi"
	"github.com/itohio/coreloop/pkg/coreloop"
	"github.com/itohio/coreloop/pkg/emulator"
	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/protocol"
)

var (
	uart = machine.UART0

	// Serial buffer for assembling command frames
	serialBuffer [cdi.CommandFrameSize]byte
	serialPos    int

	// Telemetry frame scratch, reused across packets
	frame []byte

	ledOn bool
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// Log lines would corrupt the framed stream.
	logging.SetLogger(nil)

	link := cdi.NewLink(COMMAND_QUEUE, cdi.SinkFunc(writeTelemetry))
	emu := emulator.New(nil, TICK_HZ)
	core := coreloop.New(link, emu, hal.NewMemStore(), protocol.DefaultTiming())
	core.Boot()

	next := time.Now()
	for {
		processSerial(link)

		now := time.Now()
		if now.Before(next) {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		next = next.Add(TICK_PERIOD)

		emu.Advance()
		core.Tick()

		if core.Ticks()%uint64(TICK_HZ) == 0 {
			ledOn = !ledOn
			PIN_LED.Set(ledOn)
		}
	}
}

// processSerial drains the UART, assembling command frames and resyncing on the
// frame mark.
func processSerial(link *cdi.Link) {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if serialPos == 0 && data != cdi.CommandMark {
			continue
		}
		serialBuffer[serialPos] = data
		serialPos++
		if serialPos < cdi.CommandFrameSize {
			continue
		}
		serialPos = 0

		cmd, err := cdi.DecodeCommand(serialBuffer[:])
		if err != nil {
			continue
		}
		link.Push(cmd)
	}
}

func writeTelemetry(appID uint16, payload []byte) error {
	frame = cdi.AppendTelemetry(frame[:0], appID, payload)
	_, err := uart.Write(frame)
	return err
}
