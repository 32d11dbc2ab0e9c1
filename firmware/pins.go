//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Loop timing
	TICK_PERIOD = 10 * time.Millisecond
	TICK_HZ     = uint32(time.Second / TICK_PERIOD)

	// Command queue depth
	COMMAND_QUEUE = 16

	// Status LED, toggled once per second while the loop runs
	PIN_LED = machine.LED

	// Serial configuration
	// A spectra burst is 16 products of up to 2048 packed bins plus metadata, so
	// the link runs well above the 115200 host default.
	UART_BAUD_RATE = 921600
)
