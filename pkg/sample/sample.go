// Package sample holds telemetry time series and the reductions used to display them.
package sample

import "time"

// Sample is one telemetry value at instrument time.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// InstrumentTime converts the spectrometer clock (seconds and 1/65536 s ticks) to a
// time.Time on the Unix epoch.
func InstrumentTime(seconds uint32, subseconds uint16) time.Time {
	return time.Unix(int64(seconds), int64(subseconds)*int64(time.Second)>>16)
}

// Window keeps at most size samples, oldest first.
type Window struct {
	size    int
	samples []Sample
}

// NewWindow creates a window of size samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{size: size, samples: make([]Sample, 0, size)}
}

// Add appends s and drops the oldest sample once the window is full.
func (w *Window) Add(s Sample) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, s)
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return len(w.samples)
}

// Samples returns a copy of the window contents.
func (w *Window) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}
