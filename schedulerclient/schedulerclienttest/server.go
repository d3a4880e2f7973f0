// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

// Package schedulerclienttest is a fake remote scheduler HTTP server for
// schedulerclient's own tests: it speaks the same route shapes client.go's
// methods build, recording what it was called with rather than implementing
// real scheduling behaviour.
package schedulerclienttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
)

// Call records one request the fake server received.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

// Server is an httptest-backed fake scheduler. Its zero value is not usable;
// construct with New.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	calls []Call

	taskStates   map[string]string
	fileLocation json.RawMessage
	daemon       string
}

// New starts a fake scheduler server. getTaskState reports "complete" for
// every taskID not separately registered via SetTaskState; the values given
// to SetFileLocation and SetDaemon back getFileLocation and getDaemonOnNode.
func New() *Server {
	s := &Server{taskStates: make(map[string]string)}

	router := mux.NewRouter()
	router.HandleFunc("/scheduler/registerScheduler/{ns}/{run}/{strategy}", s.ok).Methods(http.MethodPut)
	router.HandleFunc("/scheduler/{ns}/{run}", s.ok).Methods(http.MethodDelete)
	router.HandleFunc("/scheduler/startBatch/{ns}/{run}", s.ok).Methods(http.MethodPost)
	router.HandleFunc("/scheduler/endBatch/{ns}/{run}", s.ok).Methods(http.MethodPost)
	router.HandleFunc("/scheduler/DAG/addVertices/{ns}/{run}", s.ok).Methods(http.MethodPut)
	router.HandleFunc("/scheduler/DAG/addEdges/{ns}/{run}", s.ok).Methods(http.MethodPut)
	router.HandleFunc("/scheduler/registerTask/{ns}/{run}", s.registerTask).Methods(http.MethodPut)
	router.HandleFunc("/scheduler/taskstate/{ns}/{run}/{taskID}", s.taskState).Methods(http.MethodGet)
	router.HandleFunc("/file/location/{verb}/{ns}/{run}", s.ok).Methods(http.MethodPost)
	router.HandleFunc("/file/location/{verb}/{ns}/{run}/{node}", s.ok).Methods(http.MethodPost)
	router.HandleFunc("/file/{ns}/{run}", s.fileLocationHandler).Methods(http.MethodGet)
	router.HandleFunc("/daemon/{ns}/{run}/{node}", s.daemonHandler).Methods(http.MethodGet)

	router.Use(s.recordCall)

	s.Server = httptest.NewServer(router)

	return s
}

// Calls returns every request recorded so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)

	return out
}

// SetTaskState fixes the state getTaskState will report for taskID.
func (s *Server) SetTaskState(taskID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskStates[taskID] = state
}

// SetFileLocation fixes the body getFileLocation responds with.
func (s *Server) SetFileLocation(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fileLocation = raw
}

// SetDaemon fixes the daemon address getDaemonOnNode responds with.
func (s *Server) SetDaemon(daemon string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.daemon = daemon
}

func (s *Server) recordCall(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) registerTask(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"id": "fake-task-id"})
}

func (s *Server) taskState(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]

	s.mu.Lock()
	state, ok := s.taskStates[taskID]
	s.mu.Unlock()

	if !ok {
		state = "complete"
	}

	writeJSON(w, map[string]string{"state": state})
}

func (s *Server) fileLocationHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	raw := s.fileLocation
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if raw == nil {
		w.Write([]byte(`{}`)) //nolint:errcheck

		return
	}

	w.Write(raw) //nolint:errcheck
}

func (s *Server) daemonHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	daemon := s.daemon
	s.mu.Unlock()

	writeJSON(w, daemon)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

