package event

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Kind identifies the type of a captured MIDI message.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoteOn
	KindNoteOff
	KindControlChange
	KindProgramChange
	KindChannelAftertouch
	KindPolyAftertouch
	KindPitchBend
	KindSongPosition
	KindMTC
	KindSongSelect
	KindClock
	KindStart
	KindContinue
	KindStop
	KindActiveSense
	KindReset
)

// SustainController is the CC number of the sustain pedal. A sustain press is
// a capture trigger alongside NoteOn.
const SustainController = 64

const (
	// DefaultChannel is substituted when a message carries no usable channel.
	DefaultChannel uint8 = 0
	// DefaultVelocity is substituted for note-ons with a missing velocity.
	DefaultVelocity uint8 = 100
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note_on"
	case KindNoteOff:
		return "note_off"
	case KindControlChange:
		return "control_change"
	case KindProgramChange:
		return "program_change"
	case KindChannelAftertouch:
		return "channel_aftertouch"
	case KindPolyAftertouch:
		return "poly_aftertouch"
	case KindPitchBend:
		return "pitch_bend"
	case KindSongPosition:
		return "song_position"
	case KindMTC:
		return "mtc"
	case KindSongSelect:
		return "song_select"
	case KindClock:
		return "clock"
	case KindStart:
		return "start"
	case KindContinue:
		return "continue"
	case KindStop:
		return "stop"
	case KindActiveSense:
		return "active_sense"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event is one immutable captured MIDI message. Which payload fields are
// meaningful depends on Kind; Raw always holds the original wire bytes so
// kinds without a dedicated payload can be replayed verbatim.
type Event struct {
	Kind       Kind
	Channel    uint8
	Key        uint8
	Velocity   uint8
	Controller uint8
	Value      uint8
	Bend       int16
	Raw        midi.Message

	// Offset is the elapsed time since the take's capture began.
	Offset time.Duration
}

// FromMessage classifies an incoming message and normalizes its payload.
// Defaulting of missing channel/velocity happens here, at the source boundary,
// so the encoder can rely on fully populated events.
func FromMessage(msg midi.Message) Event {
	ev := Event{
		Kind:     KindUnknown,
		Channel:  DefaultChannel,
		Velocity: DefaultVelocity,
		Raw:      msg,
	}

	var ch, key, vel, cc, val, prog, pressure uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		ev.Kind = KindNoteOn
		ev.Channel = ch
		ev.Key = key
		ev.Velocity = vel
		if ev.Velocity == 0 {
			ev.Velocity = DefaultVelocity
		}
	case msg.GetNoteEnd(&ch, &key):
		// Covers both NoteOff and the running-status NoteOn with velocity 0.
		ev.Kind = KindNoteOff
		ev.Channel = ch
		ev.Key = key
		ev.Velocity = 0
	case msg.GetControlChange(&ch, &cc, &val):
		ev.Kind = KindControlChange
		ev.Channel = ch
		ev.Controller = cc
		ev.Value = val
	case msg.GetProgramChange(&ch, &prog):
		ev.Kind = KindProgramChange
		ev.Channel = ch
		ev.Value = prog
	case msg.GetAfterTouch(&ch, &pressure):
		ev.Kind = KindChannelAftertouch
		ev.Channel = ch
		ev.Value = pressure
	case msg.GetPolyAfterTouch(&ch, &key, &pressure):
		ev.Kind = KindPolyAftertouch
		ev.Channel = ch
		ev.Key = key
		ev.Value = pressure
	case msg.GetPitchBend(&ch, &rel, &abs):
		ev.Kind = KindPitchBend
		ev.Channel = ch
		ev.Bend = rel
	default:
		ev.Kind = kindFromType(msg)
	}

	return ev
}

func kindFromType(msg midi.Message) Kind {
	switch msg.Type() {
	case midi.SPPMsg:
		return KindSongPosition
	case midi.MTCMsg:
		return KindMTC
	case midi.SongSelectMsg:
		return KindSongSelect
	case midi.TimingClockMsg:
		return KindClock
	case midi.StartMsg:
		return KindStart
	case midi.ContinueMsg:
		return KindContinue
	case midi.StopMsg:
		return KindStop
	case midi.ActiveSenseMsg:
		return KindActiveSense
	case midi.ResetMsg:
		return KindReset
	default:
		return KindUnknown
	}
}

// Message returns the wire message to emit for this event. The original bytes
// are preferred; events built in code (tests, defaults) are reconstructed from
// their payload fields.
func (e Event) Message() midi.Message {
	if len(e.Raw) > 0 {
		return e.Raw
	}
	switch e.Kind {
	case KindNoteOn:
		return midi.NoteOn(e.Channel, e.Key, e.Velocity)
	case KindNoteOff:
		return midi.NoteOff(e.Channel, e.Key)
	case KindControlChange:
		return midi.ControlChange(e.Channel, e.Controller, e.Value)
	case KindProgramChange:
		return midi.ProgramChange(e.Channel, e.Value)
	case KindChannelAftertouch:
		return midi.AfterTouch(e.Channel, e.Value)
	case KindPolyAftertouch:
		return midi.PolyAfterTouch(e.Channel, e.Key, e.Value)
	case KindPitchBend:
		return midi.Pitchbend(e.Channel, e.Bend)
	default:
		return nil
	}
}

// IsCaptureTrigger reports whether this event starts a new take when the
// looper is idle or replaying: any note-on, or a sustain pedal change.
func (e Event) IsCaptureTrigger() bool {
	if e.Kind == KindNoteOn {
		return true
	}
	return e.Kind == KindControlChange && e.Controller == SustainController
}

func (e Event) String() string {
	switch e.Kind {
	case KindNoteOn, KindNoteOff:
		return fmt.Sprintf("%s ch=%d key=%d vel=%d @%s", e.Kind, e.Channel, e.Key, e.Velocity, e.Offset)
	case KindControlChange:
		return fmt.Sprintf("%s ch=%d cc=%d val=%d @%s", e.Kind, e.Channel, e.Controller, e.Value, e.Offset)
	default:
		return fmt.Sprintf("%s ch=%d @%s", e.Kind, e.Channel, e.Offset)
	}
}
