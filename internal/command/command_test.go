package command

import (
	"context"
	"testing"
)

func nopCore(ctx context.Context, p Params) (*Result, error) { return &Result{}, nil }

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(Spec{Name: "Ping", Run: nopCore}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Lookup("PING"); !ok {
		t.Fatal("lookup by upper-case name failed")
	}
	if _, ok := r.Lookup(" ping "); !ok {
		t.Fatal("lookup with surrounding spaces failed")
	}
}

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(Spec{Name: "ping", Run: nopCore}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Spec{Name: "ping", Run: nopCore}); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	if err := r.Register(Spec{Name: "", Run: nopCore}); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := r.Register(Spec{Name: "broken"}); err == nil {
		t.Fatal("nil core accepted")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, n := range []string{"today", "ping", "exercise"} {
		if err := r.Register(Spec{Name: n, Run: nopCore}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	got := r.Names()
	want := []string{"exercise", "ping", "today"}
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}
