package resource

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/transport"
)

type item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category,omitempty"`
}

func newItems(t *testing.T) (*Client[item], *testsupport.FakeServer) {
	t.Helper()
	srv := testsupport.NewFakeServer(t, "expenses", "title")
	tc, err := transport.New(transport.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	return New[item](tc, "/expenses/"), srv
}

func TestClient_CRUD(t *testing.T) {
	ctx := context.Background()
	items, srv := newItems(t)

	if got := items.Path(); got != "expenses" {
		t.Fatalf("Path() = %q", got)
	}

	created, err := items.Create(ctx, map[string]any{"title": "Lunch", "amount": 12.5})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Title != "Lunch" {
		t.Fatalf("Create() = %+v", created)
	}

	got, err := items.GetOne(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetOne() error = %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetOne() mismatch (-want +got):\n%s", diff)
	}

	updated, err := items.Update(ctx, created.ID, map[string]any{"amount": 20})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Amount != 20 || updated.Title != "Lunch" {
		t.Errorf("Update() = %+v, want merged record", updated)
	}

	deleted, err := items.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != created.ID {
		t.Errorf("Delete() = %q, want %q", deleted, created.ID)
	}
	if srv.Len() != 0 {
		t.Errorf("server still holds %d records", srv.Len())
	}
}

func TestClient_GetAllPassesParams(t *testing.T) {
	items, srv := newItems(t)
	srv.Seed(
		testsupport.Record{"title": "a", "amount": 30, "category": "food"},
		testsupport.Record{"title": "b", "amount": 10, "category": "travel"},
		testsupport.Record{"title": "c", "amount": 20, "category": "food"},
	)

	got, err := items.GetAll(context.Background(), url.Values{
		"category": {"food"},
		"sortBy":   {"amount"},
		"order":    {"asc"},
	})
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	titles := make([]string, len(got))
	for i, it := range got {
		titles[i] = it.Title
	}
	if diff := cmp.Diff([]string{"c", "a"}, titles); diff != "" {
		t.Errorf("GetAll() titles (-want +got):\n%s", diff)
	}

	empty, err := items.GetAll(context.Background(), url.Values{"category": {"none"}})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("GetAll(no match) = %v, %v; want empty non-nil slice", empty, err)
	}
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	items, _ := newItems(t)

	if _, err := items.GetOne(ctx, ""); !goerrors.IsCategory(err, goerrors.CategoryBadInput) {
		t.Errorf("GetOne(\"\") error = %v, want bad input", err)
	}
	_, err := items.GetOne(ctx, "404")
	if !faults.IsRejection(err) || faults.Message(err) != "Expense not found" {
		t.Errorf("GetOne(missing) error = %v", err)
	}
	_, err = items.Create(ctx, map[string]any{"amount": 1})
	if faults.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("Create(no title) status = %d", faults.StatusCode(err))
	}
}

func TestClient_IDsWithReservedCharacters(t *testing.T) {
	ctx := context.Background()
	items, srv := newItems(t)
	srv.Seed(testsupport.Record{"id": "a b", "title": "Lunch", "amount": 12.5})

	got, err := items.GetOne(ctx, "a b")
	if err != nil {
		t.Fatalf("GetOne(%q) error = %v", "a b", err)
	}
	if got.ID != "a b" || got.Title != "Lunch" {
		t.Errorf("GetOne() = %+v", got)
	}
	if _, err := items.Delete(ctx, "a b"); err != nil {
		t.Fatalf("Delete(%q) error = %v", "a b", err)
	}

	var paths []string
	for _, r := range srv.Requests() {
		paths = append(paths, r.Path)
	}
	if diff := cmp.Diff([]string{"/expenses/a b", "/expenses/a b"}, paths); diff != "" {
		t.Errorf("server paths mismatch (-want +got):\n%s", diff)
	}
}

type recordingDoer struct {
	mu   sync.Mutex
	reqs []transport.Request
}

func (d *recordingDoer) Do(_ context.Context, req transport.Request, _ any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	return nil
}

func TestClient_CallOptions(t *testing.T) {
	doer := &recordingDoer{}
	items := New[item](doer, "expenses")

	_, _ = items.Update(context.Background(), "a b", map[string]any{"title": "x"},
		WithIdempotencyKey("01HX"),
		WithParams(url.Values{"expand": {"notes"}}),
	)

	want := transport.Request{
		Method:         http.MethodPut,
		Path:           "expenses/a%20b",
		Query:          url.Values{"expand": {"notes"}},
		Body:           map[string]any{"title": "x"},
		IdempotencyKey: "01HX",
	}
	if diff := cmp.Diff([]transport.Request{want}, doer.reqs); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestRawID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`7`, "7"},
		{`"abc"`, "abc"},
		{`null`, ""},
		{``, ""},
		{`1.5`, "1.5"},
	}
	for _, tt := range tests {
		got, err := rawID([]byte(tt.raw))
		if err != nil || got != tt.want {
			t.Errorf("rawID(%s) = %q, %v; want %q", tt.raw, got, err, tt.want)
		}
	}
	if _, err := rawID([]byte(`{`)); !faults.IsSerialization(err) {
		t.Errorf("rawID(invalid) error = %v, want serialization", err)
	}
}
