package looper

// State is the looper's session state. Exactly one value holds at any
// instant, and only the engine goroutine ever changes it.
type State int

const (
	// StateIdle means the looper is listening for a capture trigger.
	StateIdle State = iota
	// StateCapturing means incoming events are being appended to the take.
	StateCapturing
	// StateReplaying means the current take is being emitted to the sink.
	StateReplaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCapturing:
		return "CAPTURING"
	case StateReplaying:
		return "REPLAYING"
	default:
		return "UNKNOWN"
	}
}

// Command is a discrete user command handled by the engine. Viewer navigation
// commands never reach the engine; they are routed straight to the viewer
// driver.
type Command int

const (
	// CommandStop ends capture or cancels replay; a no-op while idle.
	CommandStop Command = iota
	// CommandPlay replays the current take from the beginning.
	CommandPlay
	// CommandExport writes the current take to a Standard MIDI File.
	CommandExport
)

func (c Command) String() string {
	switch c {
	case CommandStop:
		return "stop"
	case CommandPlay:
		return "play"
	case CommandExport:
		return "export"
	default:
		return "unknown"
	}
}
