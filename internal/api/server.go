// Package api exposes the capture lifecycle over HTTP: lifecycle commands,
// state inspection, session history, a websocket event stream and a debug
// chart of the live sample window.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/loadcell-data/loadcell.report/internal/capture"
	"github.com/loadcell-data/loadcell.report/internal/db"
	"github.com/loadcell-data/loadcell.report/internal/filter"
	"github.com/loadcell-data/loadcell.report/internal/recorder"
	"github.com/loadcell-data/loadcell.report/internal/telemetry"
	"github.com/loadcell-data/loadcell.report/internal/transport"
	"github.com/loadcell-data/loadcell.report/internal/version"
)

type Server struct {
	controller *capture.Controller
	db         *db.DB
	hub        *Hub
}

// NewServer wires the HTTP layer to a controller. db and hub may be nil; the
// session history endpoint reports unavailable and no websocket endpoint is
// registered.
func NewServer(c *capture.Controller, database *db.DB, hub *Hub) *Server {
	return &Server{
		controller: c,
		db:         database,
		hub:        hub,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/characteristics", s.handleCharacteristics)
	mux.HandleFunc("/api/capture/start", s.handleStartCapture)
	mux.HandleFunc("/api/capture/stop", s.handleStopCapture)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/filter", s.handleFilter)
	mux.HandleFunc("/api/saving", s.handleSaving)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/window", s.handleWindow)
	mux.HandleFunc("/charts/window", s.handleWindowChart)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Load Cell Capture Server"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeCommandError maps controller errors onto HTTP status codes. Rejected
// parameters are the client's fault; everything else is a device or server
// problem.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var paramErr *capture.InvalidParameterError
	if errors.As(err, &paramErr) {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	devices, err := s.controller.Scan(r.Context())
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"devices": devices})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.FormValue("device")
	if err := s.controller.Connect(r.Context(), deviceID); err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"state": s.controller.State().String()})
}

func (s *Server) handleCharacteristics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]any{"characteristics": s.controller.Characteristics()})
	case http.MethodPost:
		chars, err := s.controller.Discover(r.Context())
		if err != nil {
			s.writeCommandError(w, err)
			return
		}
		s.writeJSON(w, map[string]any{"characteristics": chars})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	samples, err := strconv.ParseUint(r.FormValue("samples"), 10, 32)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid samples: must be a positive integer")
		return
	}

	err = s.controller.StartCapture(
		r.Context(),
		r.FormValue("characteristic"),
		uint32(samples),
		r.FormValue("label"),
		r.FormValue("true_weight"),
	)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"state": s.controller.State().String()})
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.controller.StopCapture(r.Context()); err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"state": s.controller.State().String()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.controller.Reset(r.Context())
	s.writeJSON(w, map[string]string{"state": s.controller.State().String()})
}

type stateResponse struct {
	Version           string                     `json:"version"`
	State             string                     `json:"state"`
	Capturing         bool                       `json:"capturing"`
	CompletedSessions int                        `json:"completed_sessions"`
	Filter            string                     `json:"filter,omitempty"`
	FilterEnabled     bool                       `json:"filter_enabled"`
	Saving            bool                       `json:"saving"`
	Devices           []transport.Device         `json:"devices"`
	Characteristics   []transport.Characteristic `json:"characteristics"`
	Session           *recorder.Session          `json:"session,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, stateResponse{
		Version:           version.Version,
		State:             s.controller.State().String(),
		Capturing:         s.controller.Capturing(),
		CompletedSessions: s.controller.CompletedSessions(),
		Filter:            s.controller.ActiveFilter(),
		FilterEnabled:     s.controller.FilterEnabled(),
		Saving:            s.controller.Saving(),
		Devices:           s.controller.Devices(),
		Characteristics:   s.controller.Characteristics(),
		Session:           s.controller.Session(),
	})
}

// handleFilter loads a strategy, toggles conditioning, or both in one call.
// "strategy" selects (or reloads) a strategy by name; "enabled" takes a
// boolean.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]any{
			"filter":     s.controller.ActiveFilter(),
			"enabled":    s.controller.FilterEnabled(),
			"strategies": filter.Strategies(),
		})
	case http.MethodPost:
		if name := r.FormValue("strategy"); name != "" {
			if err := s.controller.LoadFilter(name); err != nil {
				s.writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if v := r.FormValue("enabled"); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				s.writeJSONError(w, http.StatusBadRequest, "invalid enabled: must be a boolean")
				return
			}
			if err := s.controller.SetFilterEnabled(enabled); err != nil {
				s.writeJSONError(w, http.StatusConflict, err.Error())
				return
			}
		}
		s.writeJSON(w, map[string]any{
			"filter":  s.controller.ActiveFilter(),
			"enabled": s.controller.FilterEnabled(),
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSaving toggles CSV persistence without touching the capture state:
// while disabled, samples keep rendering but are neither written nor counted
// toward session completion.
func (s *Server) handleSaving(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]bool{"saving": s.controller.Saving()})
	case http.MethodPost:
		enabled, err := strconv.ParseBool(r.FormValue("enabled"))
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid enabled: must be a boolean")
			return
		}
		s.controller.SetSaving(enabled)
		s.writeJSON(w, map[string]bool{"saving": s.controller.Saving()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "session store not configured")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, map[string]any{"sessions": sessions})
}

type windowResponse struct {
	Raw      []telemetry.DataPoint     `json:"raw"`
	Filtered []telemetry.FilteredPoint `json:"filtered"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, filtered := s.controller.Window()
	s.writeJSON(w, windowResponse{Raw: raw, Filtered: filtered})
}
