// Package service wires the looper engine to its collaborators: MIDI ports,
// the SMF exporter, the score viewer, and whichever front end (terminal UI or
// HTTP server) drives it.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/miditake/internal/config"
	"github.com/audiolibrelab/miditake/internal/encode"
	"github.com/audiolibrelab/miditake/internal/event"
	"github.com/audiolibrelab/miditake/internal/looper"
	"github.com/audiolibrelab/miditake/internal/midiio"
	"github.com/audiolibrelab/miditake/internal/ui"
	"github.com/audiolibrelab/miditake/internal/viewer"
)

// Service owns the looper session: configuration, engine, MIDI I/O and the
// score viewer.
type Service struct {
	cfg    *config.Config
	engine *looper.Engine
	viewer *viewer.Viewer

	notices    chan looper.Notice
	stopSource func()

	lastError      string
	lastErrorMutex sync.RWMutex
}

// New assembles a service from the given configuration. MIDI ports are not
// touched until Start.
func New(cfg *config.Config) *Service {
	s := &Service{
		cfg:     cfg,
		viewer:  viewer.New(cfg.Scores.Directory),
		notices: make(chan looper.Notice, 32),
	}
	return s
}

// Start opens the MIDI ports and launches the engine goroutine. Missing
// devices are tolerated: the looper runs with whatever I/O path it got, and
// the failure is kept as the last error for the status surfaces.
func (s *Service) Start(ctx context.Context) {
	sink, err := midiio.OpenSink(s.cfg.MIDI.OutputPort)
	if err != nil {
		slog.Warn("Replay output unavailable", "error", err)
		s.setLastError(fmt.Sprintf("replay output unavailable: %v", err))
	}

	s.engine = looper.New(looper.Options{
		Sink: sink,
		Export: func(take *event.Take) (string, error) {
			return encode.Export(take, s.cfg.Output.Directory, s.cfg.Output.Prefix)
		},
		Notify:       s.publishNotice,
		SettleMargin: s.cfg.SettleMargin(),
	})

	stop, err := midiio.OpenSource(s.cfg.MIDI.InputPort, func(ev event.Event) {
		select {
		case s.engine.Events() <- ev:
		default:
			// Shedding beats stalling the MIDI driver callback.
			slog.Warn("Event dropped, engine backlogged", "event", ev.String())
		}
	})
	if err != nil {
		slog.Warn("Capture input unavailable", "error", err)
		s.setLastError(fmt.Sprintf("capture input unavailable: %v", err))
	}
	s.stopSource = stop

	go func() {
		s.engine.Run(ctx)
		s.stopSource()
		midiio.Close()
	}()
}

// publishNotice forwards an engine notice to the UI without ever blocking the
// engine goroutine.
func (s *Service) publishNotice(n looper.Notice) {
	if n.Warning {
		s.setLastError(n.Text)
	}
	select {
	case s.notices <- n:
	default:
	}
}

// RunUI runs the interactive terminal session until the user quits.
func (s *Service) RunUI() error {
	model := ui.New(s.engine.Commands(), s.viewer, s.notices, s.engine.Status)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

// Commands exposes the engine's command channel for non-UI front ends.
func (s *Service) Commands() chan<- looper.Command {
	return s.engine.Commands()
}

// Status returns the engine snapshot.
func (s *Service) Status() looper.Status {
	return s.engine.Status()
}

// Viewer returns the score viewer driver.
func (s *Service) Viewer() *viewer.Viewer {
	return s.viewer
}

// LastError returns the last recorded error or warning message.
func (s *Service) LastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *Service) setLastError(msg string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = msg
}
