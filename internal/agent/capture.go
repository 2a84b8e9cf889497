package agent

import (
	"errors"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// DefaultCaptureSize bounds the events one tool run may buffer.
const DefaultCaptureSize = 32

// ErrCaptureFull is returned by Push when the buffer is at capacity.
var ErrCaptureFull = errors.New("capture buffer full")

// Capture relays tool events from the SQL tool to the translator. It is owned
// by a single turn: the tool pushes, the translator drains on tool-end.
type Capture struct {
	ch chan model.AgentEvent
}

// NewCapture creates a capture buffer holding up to size events.
func NewCapture(size int) *Capture {
	if size <= 0 {
		size = DefaultCaptureSize
	}
	return &Capture{ch: make(chan model.AgentEvent, size)}
}

// Push appends ev without blocking.
func (c *Capture) Push(ev model.AgentEvent) error {
	select {
	case c.ch <- ev:
		return nil
	default:
		return ErrCaptureFull
	}
}

// Drain removes and returns the buffered events in push order.
func (c *Capture) Drain() []model.AgentEvent {
	var out []model.AgentEvent
	for {
		select {
		case ev := <-c.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Reset discards anything left over from a previous tool run.
func (c *Capture) Reset() {
	c.Drain()
}

// Len reports how many events are buffered.
func (c *Capture) Len() int {
	return len(c.ch)
}
