package di

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/config"
	"github.com/goliatone/go-query-cache/expense"
	"github.com/goliatone/go-query-cache/logging"
	"github.com/goliatone/go-query-cache/persist"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/resourcecache"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, n cache.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, n.Message)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.Persist.Enabled = false
	cfg.Persist.Throttle = 0
	cfg.Cache.RetryAttempts = 1
	cfg.Cache.RetryBackoff = config.Duration(time.Millisecond)
	cfg.Cache.RetryMaxBackoff = config.Duration(time.Millisecond)
	return cfg
}

func newMemoryStore(t testing.TB) *persist.MemoryStore {
	t.Helper()
	store, err := persist.NewMemoryStore(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestContainer(t testing.TB, cfg config.Config, opts ...Option) *Container {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NopLogger{})}, opts...)
	c, err := NewContainer(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestIntegration_OfflineCreateReplaysAfterRestart(t *testing.T) {
	ctx := context.Background()
	srv := testsupport.NewFakeServer(t, "expenses", "title")
	store := newMemoryStore(t)
	notifier := &recordingNotifier{}

	offline := testConfig(srv.URL)
	offline.Online.ForceOffline = true
	first := newTestContainer(t, offline, WithStore(store), WithNotifier(notifier))
	if _, err := first.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	amount := expense.AmountFromFloat(42.5)
	draft := expense.Draft{
		Title:    expense.String("Train ticket"),
		Amount:   &amount,
		Category: expense.String(expense.CategoryTravel),
	}
	if err := draft.ValidateCreate(); err != nil {
		t.Fatalf("ValidateCreate() error = %v", err)
	}

	res, err := first.Expenses().Create().Mutate(ctx, draft, resourcecache.Callbacks[expense.Expense]{})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if res.State != cache.MutationPaused {
		t.Fatalf("Mutate() state = %v, want paused", res.State)
	}
	if srv.Len() != 0 || srv.RequestCount(http.MethodPost) != 0 {
		t.Fatalf("offline create reached the server")
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := newTestContainer(t, testConfig(srv.URL), WithStore(store), WithNotifier(notifier))
	report, err := second.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !second.Monitor().IsOnline() {
		t.Fatal("probe did not mark the container online")
	}
	if report.Mutations != 1 || report.Resume.Applied != 1 {
		t.Fatalf("Start() report = %+v", report)
	}

	reqs := srv.Requests()
	var keys []string
	for _, r := range reqs {
		if r.Method == http.MethodPost {
			keys = append(keys, r.IdempotencyKey)
		}
	}
	if diff := cmp.Diff([]string{res.ID}, keys); diff != "" {
		t.Errorf("replayed idempotency keys (-want +got):\n%s", diff)
	}

	q, err := second.Expenses().FetchList(ctx, expense.Query{}.Filter())
	if err != nil {
		t.Fatalf("FetchList() error = %v", err)
	}
	items := resourcecache.NewListView(q).Items
	if len(items) != 1 || items[0].Title != "Train ticket" || !items[0].Amount.Equal(amount) {
		t.Fatalf("FetchList() items = %+v", items)
	}
	if items[0].CreatedAt == 0 {
		t.Error("replayed create was not stamped with createdAt")
	}

	got := notifier.all()
	want := "Expense added successfully"
	if len(got) == 0 || got[len(got)-1] != want {
		t.Errorf("notices = %v, want last %q", got, want)
	}
}

func TestIntegration_ProbeMarksOfflineOnNetworkError(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Online.ProbeTimeout = config.Duration(200 * time.Millisecond)

	c := newTestContainer(t, cfg, WithStore(newMemoryStore(t)))
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Monitor().IsOnline() {
		t.Error("unreachable API should leave the container offline")
	}

	res, err := c.Expenses().Delete().Mutate(context.Background(), "7", resourcecache.Callbacks[string]{})
	if err != nil || res.State != cache.MutationPaused {
		t.Errorf("Delete().Mutate() = %+v, %v; want paused", res, err)
	}
	if pending := c.Cache().PendingMutations(); len(pending) != 1 || pending[0].EntityID != "7" {
		t.Errorf("PendingMutations() = %+v", pending)
	}
}

func TestIntegration_FetchByIDUsesCache(t *testing.T) {
	ctx := context.Background()
	srv := testsupport.NewFakeServer(t, "expenses", "title")
	srv.Seed(testsupport.Record{"title": "Coffee", "amount": 3.5, "category": "food", "createdAt": 1700000000})

	c := newTestContainer(t, testConfig(srv.URL))
	if _, err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		view, err := c.Expenses().FetchByID(ctx, "1")
		if err != nil {
			t.Fatalf("FetchByID() error = %v", err)
		}
		if !view.Found || view.Data.Title != "Coffee" || expense.FormatAmount(view.Data.Amount) != "$ 3.50" {
			t.Fatalf("FetchByID() = %+v", view)
		}
	}
	var gets int
	for _, r := range srv.Requests() {
		if r.Method == http.MethodGet && r.Path == "/expenses/1" {
			gets++
		}
	}
	if gets != 1 {
		t.Errorf("GET /expenses/1 requests = %d, want 1", gets)
	}
}
