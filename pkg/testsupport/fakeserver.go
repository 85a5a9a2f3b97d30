package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Record is a stored resource, kept as decoded JSON.
type Record = map[string]any

// RecordedRequest is one request the fake server received.
type RecordedRequest struct {
	Method         string
	Path           string
	Query          string
	IdempotencyKey string
	RequestID      string
}

// FakeServer is an in-memory REST server for one resource path. It speaks
// the { "data": ... } envelope and answers errors as { status, message }.
//
//	GET    /<resource>?category=&page=&limit=&sortBy=&order=
//	GET    /<resource>/<id>
//	POST   /<resource>
//	PUT    /<resource>/<id>
//	DELETE /<resource>/<id>
//
// POSTs carrying an Idempotency-Key already seen return the record created
// the first time.
type FakeServer struct {
	*httptest.Server

	resource string

	mu         sync.Mutex
	records    map[string]Record
	order      []string
	nextID     int
	idempotent map[string]string
	requests   []RecordedRequest
	failures   []int
	required   []string
}

// NewFakeServer starts a server for resource and closes it with the test.
// Required lists the fields a POST must carry.
func NewFakeServer(t testing.TB, resource string, required ...string) *FakeServer {
	t.Helper()
	s := &FakeServer{
		resource:   strings.Trim(resource, "/"),
		records:    make(map[string]Record),
		idempotent: make(map[string]string),
		required:   required,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Seed stores records, assigning ids to records without one. Records go
// through a JSON round trip so numbers compare like posted ones.
func (s *FakeServer) Seed(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		var normalized Record
		b, err := json.Marshal(r)
		if err != nil || json.Unmarshal(b, &normalized) != nil {
			continue
		}
		s.insertLocked(normalized)
	}
}

// FailNext makes the next len(statuses) requests answer with those statuses.
func (s *FakeServer) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns the requests served so far.
func (s *FakeServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestCount counts served requests with the given method.
func (s *FakeServer) RequestCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

// Get returns a copy of the record with id.
func (s *FakeServer) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return copyRecord(r), true
}

// Len returns the number of stored records.
func (s *FakeServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *FakeServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, RecordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		Query:          r.URL.RawQuery,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		RequestID:      r.Header.Get("X-Request-ID"),
	})

	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		writeError(w, status, http.StatusText(status))
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 || parts[0] != s.resource || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	id := ""
	if len(parts) == 2 {
		id = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		s.list(w, r)
	case r.Method == http.MethodGet:
		s.getOne(w, id)
	case r.Method == http.MethodPost && id == "":
		s.create(w, r)
	case r.Method == http.MethodPut && id != "":
		s.update(w, r, id)
	case r.Method == http.MethodDelete && id != "":
		s.remove(w, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *FakeServer) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	sortBy := q.Get("sortBy")
	desc := q.Get("order") == "desc"
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if category != "" && fmt.Sprint(rec["category"]) != category {
			continue
		}
		out = append(out, copyRecord(rec))
	}

	if sortBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return less(out[j][sortBy], out[i][sortBy])
			}
			return less(out[i][sortBy], out[j][sortBy])
		})
	}

	if page > 0 && limit > 0 {
		start := (page - 1) * limit
		switch {
		case start >= len(out):
			out = out[:0]
		case start+limit < len(out):
			out = out[start : start+limit]
		default:
			out = out[start:]
		}
	}
	writeData(w, http.StatusOK, out)
}

func (s *FakeServer) getOne(w http.ResponseWriter, id string) {
	rec, ok := s.records[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *FakeServer) create(w http.ResponseWriter, r *http.Request) {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		if id, ok := s.idempotent[key]; ok {
			if rec, ok := s.records[id]; ok {
				writeData(w, http.StatusCreated, rec)
				return
			}
		}
	}

	var rec Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec == nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	for _, field := range s.required {
		if v, ok := rec[field]; !ok || v == nil || v == "" {
			writeError(w, http.StatusBadRequest, "Missing "+field)
			return
		}
	}
	delete(rec, "id")
	id := s.insertLocked(rec)
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		s.idempotent[key] = id
	}
	writeData(w, http.StatusCreated, s.records[id])
}

func (s *FakeServer) update(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := s.records[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}
	var patch Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	for k, v := range patch {
		if k != "id" {
			rec[k] = v
		}
	}
	writeData(w, http.StatusOK, rec)
}

func (s *FakeServer) remove(w http.ResponseWriter, id string) {
	if _, ok := s.records[id]; !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}
	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		writeData(w, http.StatusOK, id)
		return
	}
	writeData(w, http.StatusOK, n)
}

func (s *FakeServer) insertLocked(rec Record) string {
	rec = copyRecord(rec)
	id, _ := rec["id"].(string)
	if id == "" {
		s.nextID++
		id = strconv.Itoa(s.nextID)
		for s.records[id] != nil {
			s.nextID++
			id = strconv.Itoa(s.nextID)
		}
		rec["id"] = id
	}
	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = rec
	return id
}

func less(a, b any) bool {
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if aok && bok {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": message})
}
