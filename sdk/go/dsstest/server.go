// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package dsstest provides an in-process stub DSS server for tests.
package dsstest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/dss-sdk/dss-go/sdk/go/dss"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Error types sent by the stub server.
const (
	ErrorTypeUnauthorized  = "com.dataiku.dip.exceptions.UnauthorizedException"
	ErrorTypeUnknownObject = "com.dataiku.dip.exceptions.UnknownObjectException"
)

// RequestLog is a copy of a request received by the stub server.
type RequestLog struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Upload is a file received on an upload route.
type Upload struct {
	Path  string
	Field string
	Name  string
	Data  []byte
}

// Job is a scripted long-running job. Each full state fetch returns
// the next state in the script; once the script is exhausted, the
// last state is returned forever. Peek fetches return the current
// state without its result, and don't advance the script.
type Job struct {
	ID string

	mtx         *sync.Mutex
	states      []dss.FutureState
	fullFetches int
	peekFetches int
	aborts      int
}

// FullFetches returns the number of full state fetches so far.
func (j *Job) FullFetches() int {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return j.fullFetches
}

// PeekFetches returns the number of peek state fetches so far.
func (j *Job) PeekFetches() int {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return j.peekFetches
}

// Aborts returns the number of abort requests so far.
func (j *Job) Aborts() int {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return j.aborts
}

func (j *Job) current() dss.FutureState {
	i := j.fullFetches
	if i >= len(j.states) {
		i = len(j.states) - 1
	}
	st := j.states[i]
	if st.JobID == "" {
		st.JobID = j.ID
	}
	return st
}

type cannedResponse struct {
	status int
	body   string
}

// Server is a stub DSS server.
type Server struct {
	*httptest.Server

	// If not empty, requests must authenticate with this API key.
	APIKey string

	// If not nil, each request and response is logged at debug
	// level.
	Logger logrus.FieldLogger

	mtx     sync.Mutex
	jobs    map[string]*Job
	canned  map[string]cannedResponse
	reqs    []RequestLog
	uploads []Upload
}

// NewServer starts a stub server. The caller should call Close when
// done.
func NewServer() *Server {
	s := &Server{
		jobs:   map[string]*Job{},
		canned: map[string]cannedResponse{},
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(dss.DefaultRoutePrefix).Subrouter()
	api.HandleFunc("/futures/", s.listFutures).Methods(http.MethodGet)
	api.HandleFunc("/futures/{id}", s.getFuture).Methods(http.MethodGet)
	api.HandleFunc("/futures/{id}/abort", s.abortFuture).Methods(http.MethodPost)
	r.HandleFunc(dss.DefaultUploadPrefix+"/{path:.*}", s.upload).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(s.serveCanned)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.serveCanned)
	// Not r.Use(): mux middleware doesn't apply to the
	// NotFoundHandler.
	return s.logRequests(s.recordRequests(s.checkAuth(r)))
}

// DSSClient returns a dss.Client that talks to the stub server with
// the server's APIKey.
func (s *Server) DSSClient() *dss.Client {
	client, err := dss.NewClient(s.URL, s.APIKey, false)
	if err != nil {
		panic(err)
	}
	return client
}

// AddJob adds a scripted job. At least one state must be given.
func (s *Server) AddJob(id string, states ...dss.FutureState) *Job {
	if len(states) == 0 {
		panic("AddJob: no states")
	}
	j := &Job{ID: id, mtx: &s.mtx, states: states}
	s.mtx.Lock()
	s.jobs[id] = j
	s.mtx.Unlock()
	return j
}

// Handle makes the server respond to method+path (path relative to
// the API route prefix, e.g., "/projects/") with the given status and
// body.
func (s *Server) Handle(method, path string, status int, body string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.canned[method+" "+dss.DefaultRoutePrefix+path] = cannedResponse{status: status, body: body}
}

// Requests returns the requests received so far.
func (s *Server) Requests() []RequestLog {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]RequestLog(nil), s.reqs...)
}

// Uploads returns the files received so far on upload routes.
func (s *Server) Uploads() []Upload {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.mtx.Lock()
		s.reqs = append(s.reqs, RequestLog{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		s.mtx.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" {
			user, _, ok := r.BasicAuth()
			if !ok || user != s.APIKey {
				writeError(w, http.StatusUnauthorized, ErrorTypeUnauthorized, "Not authenticated")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveCanned(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	resp, ok := s.canned[r.Method+" "+r.URL.Path]
	s.mtx.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, ErrorTypeUnknownObject, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path))
		return
	}
	if strings.HasPrefix(strings.TrimSpace(resp.body), "{") || strings.HasPrefix(strings.TrimSpace(resp.body), "[") {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) *Job {
	id := mux.Vars(r)["id"]
	j, ok := s.jobs[id]
	if !ok {
		writeError(w, http.StatusNotFound, ErrorTypeUnknownObject, "Future not found: "+id)
		return nil
	}
	return j
}

func (s *Server) getFuture(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	j := s.job(w, r)
	if j == nil {
		return
	}
	st := j.current()
	if r.FormValue("peek") == "true" {
		j.peekFetches++
		st.Result = nil
	} else {
		j.fullFetches++
	}
	writeJSON(w, st)
}

func (s *Server) abortFuture(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	j := s.job(w, r)
	if j == nil {
		return
	}
	j.aborts++
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFutures(w http.ResponseWriter, r *http.Request) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	states := []dss.FutureState{}
	for _, j := range s.jobs {
		st := j.current()
		st.Result = nil
		states = append(states, st)
	}
	writeJSON(w, states)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "java.lang.IllegalArgumentException", err.Error())
		return
	}
	var received []Upload
	for field, fhs := range r.MultipartForm.File {
		for _, fh := range fhs {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "java.io.IOException", err.Error())
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "java.io.IOException", err.Error())
				return
			}
			received = append(received, Upload{
				Path:  "/" + mux.Vars(r)["path"],
				Field: field,
				Name:  fh.Filename,
				Data:  data,
			})
		}
	}
	s.mtx.Lock()
	s.uploads = append(s.uploads, received...)
	s.mtx.Unlock()
	writeJSON(w, map[string]int{"files": len(received)})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errorType": errorType,
		"message":   message,
	})
}
