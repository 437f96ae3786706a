// Package server exposes the looper over HTTP for remote control, e.g. from
// a phone on the same network while sitting at the instrument.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/audiolibrelab/miditake/internal/looper"
	"github.com/audiolibrelab/miditake/internal/service"
)

// Server is a small JSON API over a running looper service.
type Server struct {
	svc  *service.Service
	port string
}

// New creates a server for the given service.
func New(svc *service.Service, port string) *Server {
	return &Server{svc: svc, port: port}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/play", s.commandHandler(looper.CommandPlay))
	mux.HandleFunc("POST /api/stop", s.commandHandler(looper.CommandStop))
	mux.HandleFunc("POST /api/export", s.commandHandler(looper.CommandExport))

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}
}

type statusResponse struct {
	State          string `json:"state"`
	TakeEvents     int    `json:"take_events"`
	TakeDurationMS int64  `json:"take_duration_ms"`
	LastError      string `json:"last_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		State:          st.State.String(),
		TakeEvents:     st.TakeLen,
		TakeDurationMS: st.TakeDuration.Milliseconds(),
		LastError:      s.svc.LastError(),
	})
}

// commandHandler enqueues a looper command. Commands are handled on the
// engine goroutine, so the response only acknowledges acceptance; outcomes
// show up in the status.
func (s *Server) commandHandler(cmd looper.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.svc.Commands() <- cmd:
			writeJSON(w, http.StatusAccepted, map[string]string{"command": cmd.String()})
		default:
			http.Error(w, "engine busy", http.StatusServiceUnavailable)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Writing HTTP response failed", "error", err)
	}
}
