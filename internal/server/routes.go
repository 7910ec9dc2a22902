package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/taskforge/authsync/internal/authstate"
)

// The procedures here exist to exercise the authorization boundary; the
// application's real board and game handlers consume the same guard
// through the same registration calls.

type meResponse struct {
	User      *authstate.User `json:"user"`
	RequestID string          `json:"request_id"`
}

type task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type healthResponse struct {
	Status string    `json:"status"`
	Name   string    `json:"name"`
	Time   time.Time `json:"time"`
}

func (s *Server) registerProcedures(mux *http.ServeMux) {
	mux.Handle("/rpc/auth.me", Protected("auth.me", s.handleMe))
	mux.Handle("/rpc/tasks.list", Protected("tasks.list", s.handleTasksList))
	mux.Handle("/rpc/system.health", Public("system.health", s.handleHealth))
}

func (s *Server) handleMe(r *http.Request, _ json.RawMessage) (any, error) {
	rc := FromContext(r.Context())
	return &meResponse{User: rc.User, RequestID: rc.RequestID}, nil
}

func (s *Server) handleTasksList(r *http.Request, _ json.RawMessage) (any, error) {
	rc := FromContext(r.Context())
	// Canned per-user payload; real board data lives with the board
	// service, behind the same guard.
	return []task{
		{ID: rc.User.ID + ":1", Title: "Review sync protocol", Done: true},
		{ID: rc.User.ID + ":2", Title: "Ship the board", Done: false},
	}, nil
}

func (s *Server) handleHealth(_ *http.Request, _ json.RawMessage) (any, error) {
	return &healthResponse{
		Status: "ok",
		Name:   s.config.Server.Name,
		Time:   time.Now(),
	}, nil
}
