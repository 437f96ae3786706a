// Package encode turns a captured take into a single-track Standard MIDI
// File. Encoding is a pure function of the take: the same events always
// produce the same bytes.
package encode

import (
	"fmt"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/audiolibrelab/miditake/internal/event"
)

const (
	// Tempo is the fixed tempo written to exported files. The looper has no
	// metronome, so the tempo only scales tick resolution.
	Tempo = 120.0
	// TicksPerQuarter is the SMF tick resolution of exported files.
	TicksPerQuarter = 960
	// MinNoteDuration is the floor applied to note spans so a retriggered or
	// force-closed note never produces a zero-length note.
	MinNoteDuration = time.Millisecond

	trackInstrument = "miditake"
)

// Note is one paired note span relative to the start of the take.
type Note struct {
	Channel  uint8
	Key      uint8
	Velocity uint8
	Start    time.Duration
	Duration time.Duration
}

// Control is a control-change at a point in the take.
type Control struct {
	Channel    uint8
	Controller uint8
	Value      uint8
	At         time.Duration
}

// Program is a program-change at a point in the take.
type Program struct {
	Channel uint8
	Program uint8
	At      time.Duration
}

// Bend is a pitch-bend at a point in the take.
type Bend struct {
	Channel uint8
	Value   int16
	At      time.Duration
}

// Sequence is the flattened, note-paired form of a take. All times are
// normalized so the take's first event sits at zero.
type Sequence struct {
	Notes    []Note
	Controls []Control
	Programs []Program
	Bends    []Bend
	// End is the normalized offset of the take's last event.
	End time.Duration
}

type activeNote struct {
	start    time.Duration
	velocity uint8
}

type noteID struct {
	channel uint8
	key     uint8
}

// Flatten pairs the take's note-on/note-off events into note spans and
// collects the remaining representable events. Notes still sounding when the
// take ends are closed at the take's final offset, so the output never
// contains a dangling note. The take must hold at least one event.
func Flatten(take *event.Take) (*Sequence, error) {
	if take.Empty() {
		return nil, fmt.Errorf("take is empty")
	}

	events := take.Events()
	t0 := events[0].Offset
	seq := &Sequence{End: events[len(events)-1].Offset - t0}
	active := make(map[noteID]activeNote)

	for _, ev := range events {
		at := ev.Offset - t0
		id := noteID{channel: ev.Channel, key: ev.Key}

		switch ev.Kind {
		case event.KindNoteOn:
			if ev.Velocity == 0 {
				// Running-status note-off convention.
				seq.closeNote(active, id, at)
				continue
			}
			// A retrigger without a release closes the previous span first.
			seq.closeNote(active, id, at)
			active[id] = activeNote{start: at, velocity: ev.Velocity}
		case event.KindNoteOff:
			// Closing a note that was never opened (truncated log) is a no-op.
			seq.closeNote(active, id, at)
		case event.KindControlChange:
			seq.Controls = append(seq.Controls, Control{
				Channel:    ev.Channel,
				Controller: ev.Controller,
				Value:      ev.Value,
				At:         at,
			})
		case event.KindProgramChange:
			seq.Programs = append(seq.Programs, Program{
				Channel: ev.Channel,
				Program: ev.Value,
				At:      at,
			})
		case event.KindPitchBend:
			seq.Bends = append(seq.Bends, Bend{
				Channel: ev.Channel,
				Value:   ev.Bend,
				At:      at,
			})
		default:
			// Realtime and system-common kinds have no SMF representation.
		}
	}

	// Force-close whatever is still sounding. A valid, loadable file beats
	// perfect fidelity to an incomplete gesture.
	for id, an := range active {
		seq.Notes = append(seq.Notes, makeNote(id, an, seq.End))
	}

	// The active map has no order; restore determinism.
	sort.SliceStable(seq.Notes, func(i, j int) bool {
		if seq.Notes[i].Start != seq.Notes[j].Start {
			return seq.Notes[i].Start < seq.Notes[j].Start
		}
		if seq.Notes[i].Channel != seq.Notes[j].Channel {
			return seq.Notes[i].Channel < seq.Notes[j].Channel
		}
		return seq.Notes[i].Key < seq.Notes[j].Key
	})

	return seq, nil
}

func (s *Sequence) closeNote(active map[noteID]activeNote, id noteID, at time.Duration) {
	an, ok := active[id]
	if !ok {
		return
	}
	delete(active, id)
	s.Notes = append(s.Notes, makeNote(id, an, at))
}

func makeNote(id noteID, an activeNote, end time.Duration) Note {
	dur := end - an.start
	if dur < MinNoteDuration {
		dur = MinNoteDuration
	}
	return Note{
		Channel:  id.channel,
		Key:      id.key,
		Velocity: an.velocity,
		Start:    an.start,
		Duration: dur,
	}
}

// timedMsg is a wire message with an absolute normalized time, the unit the
// track is delta-encoded from.
type timedMsg struct {
	at  time.Duration
	msg midi.Message
}

// Encode converts a take into a one-track SMF container.
func Encode(take *event.Take) (*smf.SMF, error) {
	seq, err := Flatten(take)
	if err != nil {
		return nil, err
	}

	msgs := make([]timedMsg, 0, 2*len(seq.Notes)+len(seq.Controls)+len(seq.Programs)+len(seq.Bends))
	for _, n := range seq.Notes {
		msgs = append(msgs,
			timedMsg{at: n.Start, msg: midi.NoteOn(n.Channel, n.Key, n.Velocity)},
			timedMsg{at: n.Start + n.Duration, msg: midi.NoteOff(n.Channel, n.Key)},
		)
	}
	for _, c := range seq.Controls {
		msgs = append(msgs, timedMsg{at: c.At, msg: midi.ControlChange(c.Channel, c.Controller, c.Value)})
	}
	for _, p := range seq.Programs {
		msgs = append(msgs, timedMsg{at: p.At, msg: midi.ProgramChange(p.Channel, p.Program)})
	}
	for _, b := range seq.Bends {
		msgs = append(msgs, timedMsg{at: b.At, msg: midi.Pitchbend(b.Channel, b.Value)})
	}

	// Stable keeps note-offs ahead of same-instant retriggered note-ons.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].at < msgs[j].at })

	ticks := smf.MetricTicks(TicksPerQuarter)
	track := smf.Track{}
	track.Add(0, smf.MetaTempo(Tempo))
	track.Add(0, smf.MetaInstrument(trackInstrument))

	var prev time.Duration
	for _, tm := range msgs {
		delta := ticks.Ticks(Tempo, tm.at-prev)
		track.Add(delta, tm.msg)
		prev = tm.at
	}
	track.Close(0)

	out := smf.New()
	out.TimeFormat = ticks
	if err := out.Add(track); err != nil {
		return nil, fmt.Errorf("adding track: %w", err)
	}
	return out, nil
}
