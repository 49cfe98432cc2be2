// Package remotetest provides an in-process fake of the Volta monitoring
// service for tests. It records every snapshot it accepts, keeps the latest
// snapshot per device identifier, and can be scripted to answer monitor
// requests with specific statuses or dropped connections.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/obsidianstack/volta/pkg/types"
)

// Response is one scripted answer to POST /api/printer/monitor.
type Response struct {
	Status int
	Body   string
	// Drop closes the connection without writing a response, which the
	// client sees as a transport error.
	Drop bool
}

// OK is the service's acknowledgement.
var OK = Response{Status: http.StatusOK, Body: `{"status":"ok"}`}

// Server is a fake monitoring service. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	token string

	mu           sync.Mutex
	verify       *Response
	script       []Response
	received     []types.DeviceState
	latest       map[string]types.DeviceState
	verifyCalls  int
	monitorCalls int
	headers      []http.Header
}

// New starts a fake service that accepts token and stops it on test cleanup.
func New(tb testing.TB, token string) *Server {
	tb.Helper()
	s := &Server{token: token, latest: make(map[string]types.DeviceState)}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/printer/verify", s.handleVerify)
	mux.HandleFunc("/api/printer/monitor", s.handleMonitor)
	s.Server = httptest.NewServer(mux)
	tb.Cleanup(s.Close)
	return s
}

// SetVerify overrides the verify endpoint's answer for every later call.
func (s *Server) SetVerify(r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verify = &r
}

// ScriptMonitor queues answers for the next monitor calls, in order. Once
// the script runs out the service falls back to its normal behaviour.
func (s *Server) ScriptMonitor(rs ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, rs...)
}

// Snapshots returns every snapshot accepted so far, oldest first.
func (s *Server) Snapshots() []types.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DeviceState, len(s.received))
	copy(out, s.received)
	return out
}

// Latest returns the most recent snapshot accepted for a device identifier.
func (s *Server) Latest(id string) (types.DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.latest[id]
	return st, ok
}

// VerifyCalls returns the number of verify requests received.
func (s *Server) VerifyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls
}

// MonitorCalls returns the number of monitor requests received, including
// scripted and dropped ones.
func (s *Server) MonitorCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorCalls
}

// Headers returns the request headers of every call, in arrival order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]http.Header, len(s.headers))
	copy(out, s.headers)
	return out
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, `{"message":"method not allowed"}`)
		return
	}
	s.mu.Lock()
	s.verifyCalls++
	s.headers = append(s.headers, r.Header.Clone())
	override := s.verify
	s.mu.Unlock()

	if override != nil {
		respond(w, *override)
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
		return
	}
	body, _ := json.Marshal(map[string]string{"api_token": s.token})
	writeJSON(w, http.StatusOK, string(body))
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, `{"message":"method not allowed"}`)
		return
	}
	s.mu.Lock()
	s.monitorCalls++
	s.headers = append(s.headers, r.Header.Clone())
	var next *Response
	if len(s.script) > 0 {
		next = &s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if next != nil && (next.Drop || next.Status != http.StatusOK) {
		respond(w, *next)
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
		return
	}

	var st types.DeviceState
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity,
			fmt.Sprintf(`{"message":%q}`, "invalid payload: "+err.Error()))
		return
	}
	if strings.TrimSpace(st.ID) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, `{"errors":{"id":["The id field is required."]}}`)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, st)
	s.latest[st.ID] = st
	s.mu.Unlock()

	if next != nil {
		respond(w, *next)
		return
	}
	respond(w, OK)
}

func respond(w http.ResponseWriter, r Response) {
	if r.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, `{}`)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}
	writeJSON(w, r.Status, r.Body)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
