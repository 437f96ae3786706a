package looper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/miditake/internal/event"
)

// DefaultSettleMargin is how long the replay scheduler waits after the last
// event before reporting completion, so the final emission's transport can
// flush.
const DefaultSettleMargin = 100 * time.Millisecond

// Sink accepts events for emission during replay.
type Sink interface {
	Send(ev event.Event) error
}

// Notice is a user-visible status update: the state after the handler that
// produced it, the current take size, and an optional message. Warnings are
// notices about commands that had no effect.
type Notice struct {
	State   State
	TakeLen int
	Text    string
	Warning bool
}

// Options configures an Engine.
type Options struct {
	// Sink receives replayed events. Required.
	Sink Sink
	// Export writes the given take to disk and returns the written path.
	// Optional; the export command warns if unset.
	Export func(take *event.Take) (string, error)
	// Notify receives state changes and warnings. Optional.
	Notify func(n Notice)
	// SettleMargin overrides DefaultSettleMargin when positive.
	SettleMargin time.Duration
}

// Engine is the capture/replay state machine. All state (the session state,
// the take, the active replay session) is owned by the goroutine running Run;
// external collaborators talk to it exclusively through the Events and
// Commands channels, so every handler runs to completion before the next
// stimulus is dispatched.
type Engine struct {
	sink   Sink
	export func(take *event.Take) (string, error)
	notify func(n Notice)
	settle time.Duration

	events      chan event.Event
	commands    chan Command
	completions chan *replaySession

	// Owned by the Run goroutine.
	state   State
	take    *event.Take
	session *replaySession

	// Read-side snapshot for the UI and HTTP server.
	mu   sync.RWMutex
	snap Status
}

// Status is a point-in-time snapshot of the engine, safe to read from any
// goroutine.
type Status struct {
	State        State
	TakeLen      int
	TakeDuration time.Duration
}

// New creates an engine in the idle state with an empty take.
func New(opts Options) *Engine {
	settle := opts.SettleMargin
	if settle <= 0 {
		settle = DefaultSettleMargin
	}
	return &Engine{
		sink:        opts.Sink,
		export:      opts.Export,
		notify:      opts.Notify,
		settle:      settle,
		events:      make(chan event.Event, 128),
		commands:    make(chan Command, 16),
		completions: make(chan *replaySession, 1),
		state:       StateIdle,
	}
}

// Events is where the event source delivers captured device events.
func (e *Engine) Events() chan<- event.Event {
	return e.events
}

// Commands is where the command source delivers user commands.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Status returns the current engine snapshot.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Run dispatches events, commands and replay completions until the context is
// cancelled. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) {
	slog.Debug("Looper engine started")
	for {
		select {
		case <-ctx.Done():
			e.cancelSession()
			slog.Debug("Looper engine stopped")
			return
		case ev := <-e.events:
			e.handleEvent(ev)
		case cmd := <-e.commands:
			e.handleCommand(cmd)
		case s := <-e.completions:
			e.handleCompletion(s)
		}
	}
}

func (e *Engine) handleEvent(ev event.Event) {
	switch e.state {
	case StateCapturing:
		e.take.Append(ev, time.Since(e.take.CapturedAt()))
		e.publish()
	case StateIdle:
		if ev.IsCaptureTrigger() {
			e.startCapture(ev)
		}
	case StateReplaying:
		if ev.IsCaptureTrigger() {
			// New input overwrites: the in-flight replay is cancelled
			// before the new take exists, so no stale emission can land
			// in it.
			e.cancelSession()
			e.startCapture(ev)
		}
	}
}

// startCapture atomically replaces the take and enters the capturing state.
// The triggering event becomes the first event of the new take, at offset 0.
func (e *Engine) startCapture(trigger event.Event) {
	e.take = event.NewTake(time.Now())
	e.take.Append(trigger, 0)
	e.setState(StateCapturing, "")
	slog.Info("Capture started", "trigger", trigger.Kind.String())
}

func (e *Engine) handleCommand(cmd Command) {
	switch cmd {
	case CommandStop:
		e.handleStop()
	case CommandPlay:
		e.handlePlay()
	case CommandExport:
		e.handleExport()
	default:
		slog.Warn("Unknown command ignored", "command", int(cmd))
	}
}

func (e *Engine) handleStop() {
	switch e.state {
	case StateCapturing:
		e.setState(StateIdle, "capture stopped")
		slog.Info("Capture stopped", "events", e.take.Len(), "duration", e.take.Duration())
	case StateReplaying:
		e.cancelSession()
		e.setState(StateIdle, "replay stopped")
		slog.Info("Replay stopped")
	default:
		e.warn("nothing to stop")
	}
}

func (e *Engine) handlePlay() {
	switch e.state {
	case StateReplaying:
		e.warn("already replaying")
	case StateCapturing:
		e.warn("still capturing, stop first")
	default:
		if e.take.Empty() {
			e.warn("nothing recorded yet")
			return
		}
		e.session = newReplaySession(e.take, e.sink, e.settle, e.completions)
		e.session.start()
		e.setState(StateReplaying, "")
		slog.Info("Replay started", "events", e.take.Len(), "duration", e.take.Duration())
	}
}

// handleExport reads the take without touching the session state, so it is
// valid in any state.
func (e *Engine) handleExport() {
	if e.take.Empty() {
		e.warn("nothing to export")
		return
	}
	if e.export == nil {
		e.warn("export is not configured")
		return
	}
	path, err := e.export(e.take)
	if err != nil {
		slog.Error("Export failed", "error", err)
		e.warn("export failed: " + err.Error())
		return
	}
	slog.Info("Take exported", "path", path, "events", e.take.Len())
	e.notice(Notice{State: e.state, TakeLen: e.take.Len(), Text: "exported " + path})
}

// handleCompletion transitions back to idle when a replay session finishes
// naturally. A session that was preempted by a new capture posts nothing, but
// its completion may already be queued; the identity check makes preemption
// win that race deterministically.
func (e *Engine) handleCompletion(s *replaySession) {
	if s != e.session || e.state != StateReplaying {
		return
	}
	e.session = nil
	e.setState(StateIdle, "replay finished")
	slog.Info("Replay finished")
}

// cancelSession synchronously stops the active replay session, if any. When
// it returns, no emission from the old session can reach the sink.
func (e *Engine) cancelSession() {
	if e.session == nil {
		return
	}
	e.session.stop()
	e.session = nil
}

func (e *Engine) setState(s State, text string) {
	e.state = s
	e.publish()
	e.notice(Notice{State: s, TakeLen: e.take.Len(), Text: text})
}

func (e *Engine) warn(text string) {
	slog.Warn("Command had no effect", "reason", text, "state", e.state.String())
	e.notice(Notice{State: e.state, TakeLen: e.take.Len(), Text: text, Warning: true})
}

func (e *Engine) notice(n Notice) {
	if e.notify != nil {
		e.notify(n)
	}
}

func (e *Engine) publish() {
	e.mu.Lock()
	e.snap = Status{
		State:        e.state,
		TakeLen:      e.take.Len(),
		TakeDuration: e.take.Duration(),
	}
	e.mu.Unlock()
}
