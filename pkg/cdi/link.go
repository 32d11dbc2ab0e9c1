package cdi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/logging"
	"github.com/itohio/coreloop/pkg/protocol"
)

// DefaultBufferSize is the default depth of the command queue.
const DefaultBufferSize = 64

// Sink receives every dispatched packet.
type Sink interface {
	Write(appID uint16, payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(appID uint16, payload []byte) error

func (f SinkFunc) Write(appID uint16, payload []byte) error { return f(appID, payload) }

// Link is the host CDI: transports push commands into a buffered queue that the
// core drains without blocking, and dispatched packets fan out to the sinks.
type Link struct {
	commands chan protocol.Command

	mu    sync.Mutex
	sinks []Sink
}

// Ensure Link implements hal.CDI.
var _ hal.CDI = (*Link)(nil)

// NewLink creates a link with a command queue of bufSize.
func NewLink(bufSize int, sinks ...Sink) *Link {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Link{
		commands: make(chan protocol.Command, bufSize),
		sinks:    sinks,
	}
}

// AddSink attaches another sink.
func (l *Link) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Push queues a command. It reports false when the queue is full and the command
// was dropped.
func (l *Link) Push(c protocol.Command) bool {
	select {
	case l.commands <- c:
		return true
	default:
		logging.Logf("cdi: command queue full, dropping %s", c)
		return false
	}
}

func (l *Link) NewCommand() (protocol.Command, bool) {
	select {
	case c := <-l.commands:
		return c, true
	default:
		return protocol.Command{}, false
	}
}

// Ready always reports true; host sinks accept packets immediately.
func (l *Link) Ready() bool { return true }

func (l *Link) BlockUntilReady() {}

// Dispatch writes payload to every sink. A failing sink does not stop the others.
func (l *Link) Dispatch(appID uint16, payload []byte) error {
	l.mu.Lock()
	sinks := l.sinks
	l.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Write(appID, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch 0x%04X: %w", appID, errors.Join(errs...))
	}
	return nil
}
