package looper

import (
	"context"
	"log/slog"
	"time"

	"github.com/audiolibrelab/miditake/internal/event"
)

// replaySession emits one take to the sink with the original inter-event
// timing. It runs on its own goroutine; the engine owns its lifecycle and is
// the only writer of engine state, so the session communicates completion by
// posting itself back on the completions channel.
type replaySession struct {
	events      []event.Event
	sink        Sink
	settle      time.Duration
	completions chan<- *replaySession

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newReplaySession(take *event.Take, sink Sink, settle time.Duration, completions chan<- *replaySession) *replaySession {
	ctx, cancel := context.WithCancel(context.Background())
	return &replaySession{
		events:      take.Events(),
		sink:        sink,
		settle:      settle,
		completions: completions,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (s *replaySession) start() {
	go s.run()
}

// run walks the take's events, waiting until each one's absolute target time.
// Targets are computed against the session start rather than by chaining
// sleeps, so timing error does not accumulate across events.
func (s *replaySession) run() {
	defer close(s.done)

	start := time.Now()
	var last time.Duration
	for _, ev := range s.events {
		if !s.sleepUntil(start.Add(ev.Offset)) {
			return
		}
		if err := s.sink.Send(ev); err != nil {
			// One failed emission must not kill the rest of the replay.
			slog.Warn("Replay emission failed", "event", ev.String(), "error", err)
		}
		last = ev.Offset
	}

	// Settle margin: let the final emission's transport flush before the
	// session reports completion.
	if !s.sleepUntil(start.Add(last + s.settle)) {
		return
	}

	select {
	case s.completions <- s:
	case <-s.ctx.Done():
	}
}

// sleepUntil blocks until the target instant or cancellation. It returns
// false if the session was cancelled.
func (s *replaySession) sleepUntil(target time.Time) bool {
	wait := time.Until(target)
	if wait <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// stop cancels the session and waits for its goroutine to exit. After stop
// returns, no further emission from this session can reach the sink. Stopping
// an already finished or cancelled session is a no-op.
func (s *replaySession) stop() {
	s.cancel()
	<-s.done
}
