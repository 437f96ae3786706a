package event

import (
	"time"
)

// Take is the single in-memory event log of the most recent capture. It is
// created empty when capture starts, appended to while capturing, and read
// only afterwards. Starting a new capture replaces the whole Take; the
// previous one is gone.
type Take struct {
	capturedAt time.Time
	events     []Event
}

// NewTake starts an empty take captured at the given instant.
func NewTake(capturedAt time.Time) *Take {
	return &Take{capturedAt: capturedAt}
}

// CapturedAt returns the capture start time of the take.
func (t *Take) CapturedAt() time.Time {
	return t.capturedAt
}

// Append stores an event at the given offset from capture start. Offsets are
// clamped to be non-decreasing in storage order: arrival order is the
// recording's ground truth, so a clock hiccup never produces an event that
// appears to precede its predecessor.
func (t *Take) Append(ev Event, offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	if n := len(t.events); n > 0 && offset < t.events[n-1].Offset {
		offset = t.events[n-1].Offset
	}
	ev.Offset = offset
	t.events = append(t.events, ev)
}

// Len returns the number of captured events.
func (t *Take) Len() int {
	if t == nil {
		return 0
	}
	return len(t.events)
}

// Empty reports whether the take holds no events.
func (t *Take) Empty() bool {
	return t.Len() == 0
}

// Events returns a copy of the captured events in storage order.
func (t *Take) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Duration returns the offset of the last event, i.e. the span of the take.
func (t *Take) Duration() time.Duration {
	if t.Len() == 0 {
		return 0
	}
	return t.events[len(t.events)-1].Offset
}
