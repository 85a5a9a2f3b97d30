package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "expenses.json")
	if err := os.WriteFile(testFile, []byte(`[{"title":"Lunch","amount":12.5}]`), 0o644); err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	var got []Record
	LoadFixtureJSON(t, testFile, &got)

	if len(got) != 1 || got[0]["title"] != "Lunch" || got[0]["amount"] != 12.5 {
		t.Errorf("LoadFixtureJSON() = %v", got)
	}
}

func TestCompareWithGolden_MissingFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "table.txt")

	ft := &fatalRecorder{T: t}
	done := make(chan struct{})
	go func() {
		defer close(done)
		CompareWithGolden(ft, path, []byte("ID  TITLE\n"))
	}()
	<-done

	if !ft.failed {
		t.Fatal("CompareWithGolden() passed without a golden file")
	}
	if !strings.Contains(ft.msg, UpdateGoldenEnv) {
		t.Errorf("failure message = %q, want it to name %s", ft.msg, UpdateGoldenEnv)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("golden file was created: %v", err)
	}
}

func TestCompareWithGolden_UpdateWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "table.txt")
	t.Setenv(UpdateGoldenEnv, "1")

	CompareWithGolden(t, path, []byte("ID  TITLE\n"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("golden file not written: %v", err)
	}
	if string(data) != "ID  TITLE\n" {
		t.Errorf("golden content = %q", data)
	}

	t.Setenv(UpdateGoldenEnv, "")
	CompareWithGolden(t, path, []byte("ID  TITLE\n"))
}

// fatalRecorder captures Fatalf instead of failing the enclosing test.
type fatalRecorder struct {
	*testing.T
	failed bool
	msg    string
}

func (r *fatalRecorder) Helper() {}

func (r *fatalRecorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.msg = fmt.Sprintf(format, args...)
	runtime.Goexit()
}

func TestPaths(t *testing.T) {
	if got, want := FixturePath("seed.json"), filepath.Join("testdata", "seed.json"); got != want {
		t.Errorf("FixturePath() = %q, want %q", got, want)
	}
	if got, want := GoldenPath("list.txt"), filepath.Join("testdata", "golden", "list.txt"); got != want {
		t.Errorf("GoldenPath() = %q, want %q", got, want)
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
}

func doJSON(t *testing.T, method, url, body string, header map[string]string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, env
}

func TestFakeServer_ListFiltersSortsAndPages(t *testing.T) {
	srv := NewFakeServer(t, "expenses")
	srv.Seed(
		Record{"title": "a", "amount": 30, "category": "food"},
		Record{"title": "b", "amount": 10, "category": "food"},
		Record{"title": "c", "amount": 20, "category": "travel"},
		Record{"title": "d", "amount": 5, "category": "food"},
	)

	status, env := doJSON(t, http.MethodGet, srv.URL+"/expenses?category=food&sortBy=amount&order=asc&page=1&limit=2", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var page []Record
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 2 || page[0]["title"] != "d" || page[1]["title"] != "b" {
		t.Errorf("page = %v, want d then b", page)
	}
}

func TestFakeServer_IdempotentCreate(t *testing.T) {
	srv := NewFakeServer(t, "expenses", "title")
	header := map[string]string{"Idempotency-Key": "01HX"}

	for i := 0; i < 2; i++ {
		status, _ := doJSON(t, http.MethodPost, srv.URL+"/expenses", `{"title":"Taxi"}`, header)
		if status != http.StatusCreated {
			t.Fatalf("status = %d", status)
		}
	}
	if srv.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after a replayed create", srv.Len())
	}

	status, env := doJSON(t, http.MethodPost, srv.URL+"/expenses", `{"amount":1}`, nil)
	if status != http.StatusBadRequest || env.Message != "Missing title" {
		t.Errorf("create without title = %d %q", status, env.Message)
	}
}

func TestFakeServer_FailNextAndNotFound(t *testing.T) {
	srv := NewFakeServer(t, "expenses")
	srv.FailNext(http.StatusServiceUnavailable)

	if status, _ := doJSON(t, http.MethodGet, srv.URL+"/expenses", "", nil); status != http.StatusServiceUnavailable {
		t.Errorf("first status = %d, want 503", status)
	}
	status, env := doJSON(t, http.MethodDelete, srv.URL+"/expenses/42", "", nil)
	if status != http.StatusNotFound || env.Status != http.StatusNotFound {
		t.Errorf("delete missing = %d %+v", status, env)
	}
	if srv.RequestCount(http.MethodGet) != 1 || len(srv.Requests()) != 2 {
		t.Errorf("requests = %+v", srv.Requests())
	}
}
