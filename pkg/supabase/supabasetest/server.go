// Package supabasetest provides an in-memory PostgREST server for tests.
package supabasetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Request is one request the server received
type Request struct {
	Method string
	Table  string
	Query  string
	Header http.Header
	Body   string
}

type failure struct {
	status    int
	remaining int // negative means forever
}

// Server simulates the subset of PostgREST used by the updater
type Server struct {
	server   *httptest.Server
	apiKey   string
	mu       sync.RWMutex
	tables   map[string]map[string]map[string]interface{}
	columns  map[string]map[string]bool
	failures map[string]*failure
	requests []Request
	delay    time.Duration
	patches  int32
}

// NewServer starts a server accepting apiKey, with the categories and
// books_metadata tables defined and empty.
func NewServer(apiKey string) *Server {
	s := &Server{
		apiKey: apiKey,
		tables: map[string]map[string]map[string]interface{}{
			"categories":     {},
			"books_metadata": {},
		},
		columns: map[string]map[string]bool{
			"categories":     {"id": true, "topics": true, "ai_topics": true, "ai_categories": true},
			"books_metadata": {"id": true, "topics": true, "ai_topics": true, "ai_categories": true},
		},
		failures: make(map[string]*failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", s.handleTable)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the project URL of the server
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down
func (s *Server) Close() {
	s.server.Close()
}

// Seed inserts rows with the given ids into table
func (s *Server) Seed(table string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]map[string]interface{})
		s.tables[table] = rows
	}
	for _, id := range ids {
		rows[id] = map[string]interface{}{"id": id}
	}
}

// Values returns the stored list in column of row id
func (s *Server) Values(table, id, column string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tables[table][id]
	if !ok {
		return nil, false
	}
	values, ok := row[column].([]string)
	return values, ok
}

// FailRow makes writes to row id answer with status. times < 0 fails forever.
func (s *Server) FailRow(id string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = &failure{status: status, remaining: times}
}

// SetDelay delays every response
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns every request received so far
func (s *Server) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// PatchCount returns the number of PATCH requests received
func (s *Server) PatchCount() int {
	return int(atomic.LoadInt32(&s.patches))
}

// PatchedIDs returns the id filter of every PATCH in arrival order
func (s *Server) PatchedIDs() []string {
	var ids []string
	for _, r := range s.Requests() {
		if r.Method == http.MethodPatch {
			ids = append(ids, strings.TrimPrefix(queryValue(r.Query, "id"), "eq."))
		}
	}
	return ids
}

func queryValue(rawQuery, key string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	return values.Get(key)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Table:  table,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	delay := s.delay
	s.mu.Unlock()

	if r.Method == http.MethodPatch {
		atomic.AddInt32(&s.patches, 1)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get("apikey") != s.apiKey || r.Header.Get("Authorization") != "Bearer "+s.apiKey {
		sendError(w, http.StatusUnauthorized, "PGRST301", "Invalid API key", "", "")
		return
	}

	s.mu.RLock()
	columns, ok := s.columns[table]
	s.mu.RUnlock()
	if !ok {
		sendError(w, http.StatusNotFound, "42P01", fmt.Sprintf("relation \"public.%s\" does not exist", table), "", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleSelect(w, table)
	case http.MethodPatch:
		s.handlePatch(w, r, table, columns, body)
	default:
		sendError(w, http.StatusMethodNotAllowed, "PGRST000", "method not allowed", "", "")
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, table string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := []map[string]interface{}{}
	for id := range s.tables[table] {
		rows = append(rows, map[string]interface{}{"id": id})
		break
	}
	sendJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, table string, columns map[string]bool, body []byte) {
	filter := r.URL.Query().Get("id")
	if !strings.HasPrefix(filter, "eq.") {
		sendError(w, http.StatusBadRequest, "PGRST100", "missing or invalid id filter", filter, "")
		return
	}
	id := strings.TrimPrefix(filter, "eq.")

	if status, failing := s.takeFailure(id); failing {
		sendError(w, status, "XX000", fmt.Sprintf("injected failure for row %s", id), "", "")
		return
	}

	var update map[string][]string
	if err := json.Unmarshal(body, &update); err != nil {
		sendError(w, http.StatusBadRequest, "PGRST102", "Invalid body", err.Error(), "")
		return
	}
	for column := range update {
		if !columns[column] || column == "id" {
			sendError(w, http.StatusBadRequest, "PGRST204",
				fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", column, table), "", "")
			return
		}
	}

	s.mu.Lock()
	row, ok := s.tables[table][id]
	if ok {
		for column, values := range update {
			row[column] = values
		}
	}
	s.mu.Unlock()

	if !ok {
		sendJSON(w, http.StatusOK, []interface{}{})
		return
	}

	if r.Header.Get("Prefer") != "return=representation" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mu.RLock()
	echo := make(map[string]interface{}, len(row))
	for k, v := range row {
		echo[k] = v
	}
	s.mu.RUnlock()
	sendJSON(w, http.StatusOK, []interface{}{echo})
}

func (s *Server) takeFailure(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[id]
	if !ok || f.remaining == 0 {
		return 0, false
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.status, true
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, code, message, details, hint string) {
	sendJSON(w, status, map[string]interface{}{
		"code":    code,
		"message": message,
		"details": details,
		"hint":    hint,
	})
}
