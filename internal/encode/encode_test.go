package encode

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/miditake/internal/event"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func takeOf(evs ...event.Event) *event.Take {
	take := event.NewTake(time.Now())
	for _, ev := range evs {
		take.Append(ev, ev.Offset)
	}
	return take
}

func on(key, vel uint8, at time.Duration) event.Event {
	return event.Event{Kind: event.KindNoteOn, Key: key, Velocity: vel, Offset: at}
}

func off(key uint8, at time.Duration) event.Event {
	return event.Event{Kind: event.KindNoteOff, Key: key, Offset: at}
}

func TestFlatten_PairsNotes(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		off(60, ms(500)),
		on(64, 90, ms(500)),
		off(64, ms(1200)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Notes) != 2 {
		t.Fatalf("Expected 2 notes, got %d", len(seq.Notes))
	}

	first := seq.Notes[0]
	if first.Key != 60 || first.Velocity != 100 || first.Start != 0 || first.Duration != ms(500) {
		t.Errorf("First note incorrect: %+v", first)
	}
	second := seq.Notes[1]
	if second.Key != 64 || second.Velocity != 90 || second.Start != ms(500) || second.Duration != ms(700) {
		t.Errorf("Second note incorrect: %+v", second)
	}
}

func TestFlatten_DanglingNoteClosedAtEnd(t *testing.T) {
	seq, err := Flatten(takeOf(on(60, 100, 0)))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Notes) != 1 {
		t.Fatalf("Expected 1 note, got %d", len(seq.Notes))
	}
	n := seq.Notes[0]
	if n.Key != 60 || n.Start != 0 {
		t.Errorf("Note incorrect: %+v", n)
	}
	if n.Duration < MinNoteDuration {
		t.Errorf("Dangling note must get the minimum duration, got %s", n.Duration)
	}
}

func TestFlatten_SustainHeldNotesClosedAtFinalOffset(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		on(64, 90, ms(100)),
		off(60, ms(400)),
		// 64 never released; the last event sits at 400ms.
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Notes) != 2 {
		t.Fatalf("Expected 2 notes, got %d", len(seq.Notes))
	}
	for _, n := range seq.Notes {
		if n.Duration <= 0 {
			t.Errorf("Note %d has non-positive duration %s", n.Key, n.Duration)
		}
		if end := n.Start + n.Duration; n.Key == 64 && end != ms(400) {
			t.Errorf("Held note must close at the final offset, ends at %s", end)
		}
	}
}

func TestFlatten_RetriggerClosesPreviousNote(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		on(60, 80, ms(300)), // retrigger without a release
		off(60, ms(600)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Notes) != 2 {
		t.Fatalf("Expected 2 notes, got %d", len(seq.Notes))
	}
	// The first span keeps the first note-on's velocity.
	if seq.Notes[0].Velocity != 100 || seq.Notes[0].Duration != ms(300) {
		t.Errorf("First span incorrect: %+v", seq.Notes[0])
	}
	if seq.Notes[1].Velocity != 80 || seq.Notes[1].Start != ms(300) || seq.Notes[1].Duration != ms(300) {
		t.Errorf("Second span incorrect: %+v", seq.Notes[1])
	}
}

func TestFlatten_VelocityZeroNoteOnClosesNote(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		on(60, 0, ms(250)), // running-status note-off
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Notes) != 1 {
		t.Fatalf("Expected 1 note, got %d", len(seq.Notes))
	}
	if seq.Notes[0].Duration != ms(250) {
		t.Errorf("Expected 250ms duration, got %s", seq.Notes[0].Duration)
	}
}

func TestFlatten_UnmatchedNoteOffIsNoOp(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		off(72, ms(100)), // never opened, e.g. truncated log
		off(60, ms(200)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(seq.Notes) != 1 || seq.Notes[0].Key != 60 {
		t.Fatalf("Unmatched note-off must be ignored, notes: %+v", seq.Notes)
	}
}

func TestFlatten_NormalizesToFirstOffset(t *testing.T) {
	// The first captured event defines time zero of the output.
	seq, err := Flatten(takeOf(
		on(60, 100, ms(2000)),
		off(60, ms(2500)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if seq.Notes[0].Start != 0 {
		t.Errorf("Expected normalized start 0, got %s", seq.Notes[0].Start)
	}
	if seq.End != ms(500) {
		t.Errorf("Expected normalized end 500ms, got %s", seq.End)
	}
}

func TestFlatten_ControlChangesCarriedThrough(t *testing.T) {
	seq, err := Flatten(takeOf(
		event.Event{Kind: event.KindControlChange, Channel: 1, Controller: 64, Value: 127, Offset: 0},
		on(60, 100, ms(10)),
		event.Event{Kind: event.KindControlChange, Channel: 1, Controller: 64, Value: 0, Offset: ms(300)},
		off(60, ms(400)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if len(seq.Controls) != 2 {
		t.Fatalf("Expected 2 control changes, got %d", len(seq.Controls))
	}
	if c := seq.Controls[0]; c.Controller != 64 || c.Value != 127 || c.Channel != 1 || c.At != 0 {
		t.Errorf("First CC incorrect: %+v", c)
	}
	if c := seq.Controls[1]; c.Value != 0 || c.At != ms(300) {
		t.Errorf("Second CC incorrect: %+v", c)
	}
}

func TestFlatten_RealtimeKindsDropped(t *testing.T) {
	seq, err := Flatten(takeOf(
		on(60, 100, 0),
		event.Event{Kind: event.KindClock, Offset: ms(10)},
		event.Event{Kind: event.KindActiveSense, Offset: ms(20)},
		off(60, ms(100)),
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(seq.Notes) != 1 || len(seq.Controls) != 0 {
		t.Errorf("Realtime kinds must not appear in the output")
	}
}

func TestFlatten_SameKeyDifferentChannelsIndependent(t *testing.T) {
	seq, err := Flatten(takeOf(
		event.Event{Kind: event.KindNoteOn, Channel: 0, Key: 60, Velocity: 100, Offset: 0},
		event.Event{Kind: event.KindNoteOn, Channel: 1, Key: 60, Velocity: 90, Offset: ms(100)},
		event.Event{Kind: event.KindNoteOff, Channel: 0, Key: 60, Offset: ms(200)},
		event.Event{Kind: event.KindNoteOff, Channel: 1, Key: 60, Offset: ms(300)},
	))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(seq.Notes) != 2 {
		t.Fatalf("Expected 2 notes, got %d", len(seq.Notes))
	}
	if seq.Notes[0].Channel != 0 || seq.Notes[0].Duration != ms(200) {
		t.Errorf("Channel 0 note incorrect: %+v", seq.Notes[0])
	}
	if seq.Notes[1].Channel != 1 || seq.Notes[1].Duration != ms(200) {
		t.Errorf("Channel 1 note incorrect: %+v", seq.Notes[1])
	}
}

func TestFlatten_EmptyTakeRejected(t *testing.T) {
	if _, err := Flatten(event.NewTake(time.Now())); err == nil {
		t.Fatalf("Expected error for empty take")
	}
}

func TestEncode_Deterministic(t *testing.T) {
	take := takeOf(
		on(60, 100, 0),
		event.Event{Kind: event.KindControlChange, Controller: 64, Value: 127, Offset: ms(50)},
		on(64, 90, ms(100)),
		off(60, ms(500)),
		// 64 dangles on purpose.
	)

	var a, b bytes.Buffer
	for _, buf := range []*bytes.Buffer{&a, &b} {
		out, err := Encode(take)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if _, err := out.WriteTo(buf); err != nil {
			t.Fatalf("WriteTo failed: %v", err)
		}
	}

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Errorf("Encoding the same take twice produced different bytes")
	}
	if a.Len() == 0 {
		t.Errorf("Encoded file is empty")
	}
	// SMF header magic.
	if !bytes.HasPrefix(a.Bytes(), []byte("MThd")) {
		t.Errorf("Output is not an SMF container: % X", a.Bytes()[:8])
	}
}

func TestExportPath(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 30, 5, 123456789, time.UTC)
	got := ExportPath("/tmp/out", "recording", now)

	want := "/tmp/out/recording-2024-03-09T14-30-05.mid"
	if got != want {
		t.Errorf("ExportPath = %q, want %q", got, want)
	}
	if strings.ContainsAny(got[len("/tmp/out/"):], ":") {
		t.Errorf("Export file name contains a colon: %q", got)
	}
}
