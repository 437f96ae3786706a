// Package midiio binds the looper to physical MIDI ports via gomidi. Missing
// devices are tolerated: the returned source/sink turn inert instead of
// failing the process, since half a loopback path is still useful.
package midiio

import (
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the MIDI driver

	"github.com/audiolibrelab/miditake/internal/event"
)

// Ports lists the names of the available MIDI ports.
type Ports struct {
	In  []string
	Out []string
}

// ListPorts enumerates the currently visible MIDI ports.
func ListPorts() Ports {
	var p Ports
	for _, in := range midi.GetInPorts() {
		p.In = append(p.In, in.String())
	}
	for _, out := range midi.GetOutPorts() {
		p.Out = append(p.Out, out.String())
	}
	return p
}

// Close releases the underlying MIDI driver.
func Close() {
	midi.CloseDriver()
}

// findInPort resolves an input port by name. An empty name picks the first
// port that is not a software Through port.
func findInPort(name string) (drivers.In, error) {
	if name != "" {
		return midi.FindInPort(name)
	}
	for _, in := range midi.GetInPorts() {
		if strings.Contains(in.String(), "Through") {
			continue
		}
		return in, nil
	}
	return nil, fmt.Errorf("no MIDI input port available")
}

func findOutPort(name string) (drivers.Out, error) {
	if name != "" {
		return midi.FindOutPort(name)
	}
	for _, out := range midi.GetOutPorts() {
		if strings.Contains(out.String(), "Through") {
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("no MIDI output port available")
}

// OpenSource starts listening on the named input port, delivering normalized
// events to deliver. The returned stop function detaches the listener. When
// the port cannot be opened the source is inert: stop is still valid and the
// error describes why nothing will be captured.
func OpenSource(portName string, deliver func(event.Event)) (stop func(), err error) {
	in, err := findInPort(portName)
	if err != nil {
		return func() {}, fmt.Errorf("opening MIDI input: %w", err)
	}

	stop, err = midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		deliver(event.FromMessage(msg))
	}, midi.UseActiveSense(), midi.UseTimeCode())
	if err != nil {
		return func() {}, fmt.Errorf("listening on %q: %w", in.String(), err)
	}

	slog.Info("MIDI input attached", "port", in.String())
	return stop, nil
}

// Sink emits events to a MIDI output port. A Sink with no usable port drops
// events silently after logging once at open time.
type Sink struct {
	port string
	send func(msg midi.Message) error
}

// OpenSink opens the named output port for emission. On failure an inert sink
// and the cause are returned.
func OpenSink(portName string) (*Sink, error) {
	out, err := findOutPort(portName)
	if err != nil {
		return &Sink{}, fmt.Errorf("opening MIDI output: %w", err)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		return &Sink{}, fmt.Errorf("attaching to %q: %w", out.String(), err)
	}

	slog.Info("MIDI output attached", "port", out.String())
	return &Sink{port: out.String(), send: send}, nil
}

// Port returns the bound output port name, empty for an inert sink.
func (s *Sink) Port() string {
	return s.port
}

// Send emits one event. Events without a wire representation and sends into
// an inert sink are dropped without error.
func (s *Sink) Send(ev event.Event) error {
	if s.send == nil {
		return nil
	}
	msg := ev.Message()
	if msg == nil {
		return nil
	}
	return s.send(msg)
}
