package logging

import "testing"

func TestFieldsWith(t *testing.T) {
	base := Fields{"key": "expenses"}
	got := base.With("id", "42", "attempts", 2, "dangling")

	if len(base) != 1 {
		t.Fatalf("base fields mutated: %v", base)
	}
	if got["key"] != "expenses" || got["id"] != "42" || got["attempts"] != 2 {
		t.Errorf("unexpected fields: %v", got)
	}
	if _, ok := got["dangling"]; ok {
		t.Error("odd trailing key should be dropped")
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Error("expected NopLogger for nil")
	}
	l := NopLogger{}
	if OrNop(l) != Logger(l) {
		t.Error("expected logger passthrough")
	}
}
