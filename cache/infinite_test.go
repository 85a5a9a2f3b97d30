package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testPageLimit = 2

// pagedSource serves pages of testPageLimit items out of a fixed list.
type pagedSource struct {
	mu     sync.Mutex
	items  []string
	params []int
	// gate, when set, blocks the fetch of the given page until closed.
	gatePage int
	gate     chan struct{}
	entered  chan struct{}
}

func (s *pagedSource) fetch(_ context.Context, param int) ([]string, error) {
	s.mu.Lock()
	s.params = append(s.params, param)
	gatePage, gate, entered := s.gatePage, s.gate, s.entered
	s.mu.Unlock()

	if gate != nil && param == gatePage {
		close(entered)
		<-gate
	}

	start := (param - 1) * testPageLimit
	if start >= len(s.items) {
		return []string{}, nil
	}
	end := start + testPageLimit
	if end > len(s.items) {
		end = len(s.items)
	}
	return append([]string(nil), s.items[start:end]...), nil
}

func (s *pagedSource) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.params...)
}

func nextWhileFull(last Page[string], all []Page[string]) (int, bool) {
	if len(last.Items) == testPageLimit {
		return len(all) + 1, true
	}
	return 0, false
}

func TestInfiniteQuery_PagesUntilShortPage(t *testing.T) {
	c := newTestClient(t, testConfig())
	src := &pagedSource{items: []string{"a", "b", "c", "d", "e"}}
	q := QueryInfinite(c, NewKey("expenses", "", "createdAt", "desc"), src.fetch, nextWhileFull, QueryOptions{})
	ctx := context.Background()

	res, err := q.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Data.Pages) != 1 || !q.HasNextPage() {
		t.Fatalf("after Fetch pages = %d, HasNextPage = %v", len(res.Data.Pages), q.HasNextPage())
	}

	for i := 0; i < 3; i++ {
		if res, err = q.FetchNextPage(ctx); err != nil {
			t.Fatalf("FetchNextPage() error = %v", err)
		}
	}

	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, res.Data.Items()); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	params := make([]int, len(res.Data.Pages))
	for i, p := range res.Data.Pages {
		params[i] = p.Param
	}
	if diff := cmp.Diff([]int{1, 2, 3}, params); diff != "" {
		t.Errorf("page params mismatch (-want +got):\n%s", diff)
	}
	if q.HasNextPage() {
		t.Errorf("HasNextPage() = true after a short page")
	}
	// The third FetchNextPage had no next page and must not call the source.
	if diff := cmp.Diff([]int{1, 2, 3}, src.calls()); diff != "" {
		t.Errorf("source calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInfiniteQuery_RefetchAfterInvalidationRestartsAtFirstPage(t *testing.T) {
	c := newTestClient(t, testConfig())
	src := &pagedSource{items: []string{"a", "b", "c", "d", "e"}}
	q := QueryInfinite(c, NewKey("expenses"), src.fetch, nextWhileFull, QueryOptions{Refetch: RefetchBlocking})
	ctx := context.Background()

	if _, err := q.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := q.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage() error = %v", err)
	}

	c.Invalidate(ctx, NewKey("expenses"))
	res, err := q.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Data.Pages) != 1 || res.Data.Pages[0].Param != 1 {
		t.Errorf("pages after refetch = %+v, want only page 1", res.Data.Pages)
	}
}

func TestInfiniteQuery_NextPageAfterInvalidationIsDiscarded(t *testing.T) {
	c := newTestClient(t, testConfig())
	src := &pagedSource{
		items:    []string{"a", "b", "c", "d"},
		gatePage: 2,
		gate:     make(chan struct{}),
		entered:  make(chan struct{}),
	}
	q := QueryInfinite(c, NewKey("expenses"), src.fetch, nextWhileFull, QueryOptions{})
	ctx := context.Background()

	if _, err := q.Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.FetchNextPage(ctx)
	}()
	<-src.entered
	c.Invalidate(ctx, NewKey("expenses"))
	close(src.gate)
	<-done

	if q.IsFetchingNextPage() {
		t.Errorf("IsFetchingNextPage() = true after completion")
	}
	res := q.Result()
	if len(res.Data.Pages) != 1 {
		t.Errorf("pages = %d, want the late page discarded", len(res.Data.Pages))
	}
	if !res.IsStale {
		t.Errorf("result should stay stale after invalidation")
	}
}

func TestInfiniteQuery_FetchNextPageWithoutDataLoadsFirstPage(t *testing.T) {
	c := newTestClient(t, testConfig())
	src := &pagedSource{items: []string{"a"}}
	q := QueryInfinite(c, NewKey("expenses"), src.fetch, nextWhileFull, QueryOptions{})

	res, err := q.FetchNextPage(context.Background())
	if err != nil {
		t.Fatalf("FetchNextPage() error = %v", err)
	}
	if got := fmt.Sprint(res.Data.Items()); got != "[a]" {
		t.Errorf("items = %s, want [a]", got)
	}
	if q.HasNextPage() {
		t.Errorf("HasNextPage() = true for a short first page")
	}
}
