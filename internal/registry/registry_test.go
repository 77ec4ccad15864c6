package registry

import (
	"errors"
	"testing"
)

func TestBeginRejectsConcurrentRun(t *testing.T) {
	r := New()
	if _, err := r.Begin("42"); err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if _, err := r.Begin("42"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := r.Begin("77"); err != nil {
		t.Fatalf("other owner should be independent: %v", err)
	}
}

func TestStopSignalFreshPerRun(t *testing.T) {
	r := New()
	stop, err := r.Begin("42")
	if err != nil {
		t.Fatal(err)
	}
	if !r.RequestStop("42") {
		t.Fatal("expected RequestStop to hit the running crawl")
	}
	if !stop.Raised() {
		t.Fatal("expected signal raised")
	}
	r.Finish("42", "")

	next, err := r.Begin("42")
	if err != nil {
		t.Fatalf("Begin after Finish err: %v", err)
	}
	if next.Raised() {
		t.Fatal("stale stop leaked into the new run")
	}
}

func TestRequestStopWithoutRun(t *testing.T) {
	r := New()
	if r.RequestStop("42") {
		t.Fatal("expected false with no run")
	}
	r.Finish("42", "")
	p := r.Snapshot("42")
	if p.Running || p.Message != "idle" {
		t.Fatalf("expected idle snapshot, got %+v", p)
	}
}

func TestProgressSnapshot(t *testing.T) {
	r := New()
	if _, err := r.Begin("42"); err != nil {
		t.Fatal(err)
	}
	r.SetProgress("42", 3, 57, "cursor123", "page 3 done")
	p := r.Snapshot("42")
	if !p.Running || p.Page != 3 || p.Items != 57 || p.Offset != "cursor123" {
		t.Fatalf("unexpected snapshot %+v", p)
	}
	r.Finish("42", "boom")
	p = r.Snapshot("42")
	if p.Running || p.LastError != "boom" {
		t.Fatalf("unexpected finished snapshot %+v", p)
	}
}
