package online

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-query-cache/faults"
)

func TestMonitor_NotifiesOnlyOnChange(t *testing.T) {
	m := NewMonitor(true)

	var mu sync.Mutex
	var seen []bool
	unsubscribe := m.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, online)
	})

	steps := []struct {
		set         bool
		wantChanged bool
	}{
		{true, false},
		{false, true},
		{false, false},
		{true, true},
	}
	for i, s := range steps {
		if got := m.SetOnline(s.set); got != s.wantChanged {
			t.Errorf("step %d: SetOnline(%v) = %v, want %v", i, s.set, got, s.wantChanged)
		}
	}

	unsubscribe()
	m.SetOnline(false)

	if diff := cmp.Diff([]bool{false, true}, seen); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	if m.IsOnline() {
		t.Errorf("IsOnline() = true after SetOnline(false)")
	}
}

func TestProber_Check(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		err     error
		want    bool
	}{
		{"success", false, nil, true},
		{"network error", true, faults.Network(errors.New("dial tcp"), "request failed"), false},
		{"rejection still means reachable", false, faults.Rejection(404, ""), true},
		{"unclassified error", false, errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(tt.initial)
			p := NewProber(PingerFunc(func(context.Context) error { return tt.err }), m)

			if got := p.Check(context.Background()); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
			if m.IsOnline() != tt.want {
				t.Errorf("monitor state = %v, want %v", m.IsOnline(), tt.want)
			}
		})
	}
}

func TestProber_RunStopsWithContext(t *testing.T) {
	m := NewMonitor(false)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := NewProber(PingerFunc(func(context.Context) error {
		calls++
		cancel()
		return nil
	}), m)

	p.Run(ctx)

	if calls != 1 || !m.IsOnline() {
		t.Errorf("Run() calls = %d online = %v", calls, m.IsOnline())
	}
}
