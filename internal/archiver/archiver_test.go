package archiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/feed"
	"dynamics-archiver-go/internal/registry"
	"dynamics-archiver-go/internal/state"
	"dynamics-archiver-go/internal/store"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "archiver-test-*")
	if err != nil {
		panic(err)
	}
	config.AppConfig.StoreBackend = "sqlite"
	config.AppConfig.SQLitePath = filepath.Join(dir, "data", "bilibili_dynamic.db")
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type scriptedPage struct {
	items  []map[string]any
	offset string
}

type fakeFetcher struct {
	pages   map[string]scriptedPage
	offsets []string
	onFetch func(offset string)
}

func (f *fakeFetcher) FetchSpacePage(ctx context.Context, hostMID, offset string, needTop bool) (feed.Page, error) {
	f.offsets = append(f.offsets, offset)
	if f.onFetch != nil {
		f.onFetch(offset)
	}
	p, ok := f.pages[offset]
	if !ok {
		return feed.Page{}, fmt.Errorf("unscripted offset %q", offset)
	}
	return feed.Page{Items: p.items, NextOffset: p.offset}, nil
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, dynamicID string) (map[string]any, error) {
	return map[string]any{"id_str": dynamicID, "type": "DYNAMIC_TYPE_WORD"}, nil
}

func rawItem(id string) map[string]any {
	return map[string]any{"id_str": id, "type": "DYNAMIC_TYPE_WORD"}
}

func rawItems(ids ...string) []map[string]any {
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		out[i] = rawItem(id)
	}
	return out
}

func newTestArchiver(t *testing.T, f Fetcher) (*Archiver, string) {
	t.Helper()
	out := t.TempDir()
	return &Archiver{
		Fetcher:   f,
		Registry:  registry.New(),
		OutputDir: out,
		Threshold: 3,
		JitterMin: time.Millisecond,
		JitterMax: 2 * time.Millisecond,
	}, out
}

func TestRunFirstCrawlWalksAllPages(t *testing.T) {
	host := "host_first"
	f := &fakeFetcher{pages: map[string]scriptedPage{
		"":     {items: rawItems("a1", "a2"), offset: "cur1"},
		"cur1": {items: rawItems("a3"), offset: ""},
	}}
	a, out := newTestArchiver(t, f)

	res, err := a.Run(context.Background(), host, Options{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if res.Reason != ReasonCompleted || res.Pages != 2 || res.Items != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.offsets) != 2 || f.offsets[0] != "" || f.offsets[1] != "cur1" {
		t.Fatalf("unexpected request offsets %v", f.offsets)
	}

	meta := state.Load(filepath.Join(out, "dynamic", host), host)
	if !meta.FullyFetched || meta.LastOffset.Offset != "" {
		t.Fatalf("expected fully fetched meta, got %+v", meta)
	}
	ok, err := store.ItemExists(host, "a3")
	if err != nil || !ok {
		t.Fatalf("expected a3 archived, ok=%v err=%v", ok, err)
	}
}

func TestRunResumesFromRecordedCursor(t *testing.T) {
	host := "host_resume"
	f := &fakeFetcher{pages: map[string]scriptedPage{
		"cur42": {items: rawItems("b1"), offset: ""},
	}}
	a, out := newTestArchiver(t, f)

	m := state.Meta{HostMID: host, LastOffset: state.Offset{Offset: "cur42"}}
	if err := m.Save(filepath.Join(out, "dynamic", host)); err != nil {
		t.Fatal(err)
	}

	res, err := a.Run(context.Background(), host, Options{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if res.Reason != ReasonCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.offsets[0] != "cur42" {
		t.Fatalf("expected resume from cur42, first request used %q", f.offsets[0])
	}
}

func TestRunHeadRestartStopsOnKnownRun(t *testing.T) {
	host := "host_dedup"
	for _, id := range []string{"old1", "old2", "old3"} {
		if err := store.UpsertItem(host, feed.Item{IDStr: id}); err != nil {
			t.Fatal(err)
		}
	}

	f := &fakeFetcher{pages: map[string]scriptedPage{
		"": {items: rawItems("new1", "old1", "old2", "old3", "old4"), offset: "more"},
	}}
	a, out := newTestArchiver(t, f)

	m := state.Meta{HostMID: host, FullyFetched: true}
	if err := m.Save(filepath.Join(out, "dynamic", host)); err != nil {
		t.Fatal(err)
	}

	res, err := a.Run(context.Background(), host, Options{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if res.Reason != ReasonCompleted {
		t.Fatalf("expected completion via dedup, got %+v", res)
	}
	if res.Pages != 1 || res.Items != 1 {
		t.Fatalf("expected only the new head item kept, got %+v", res)
	}
	if len(f.offsets) != 1 {
		t.Fatalf("expected no second page request, offsets=%v", f.offsets)
	}
	ok, err := store.ItemExists(host, "new1")
	if err != nil || !ok {
		t.Fatalf("new head item missing, ok=%v err=%v", ok, err)
	}
	meta := state.Load(filepath.Join(out, "dynamic", host), host)
	if !meta.FullyFetched {
		t.Fatalf("expected fully fetched meta after dedup stop, got %+v", meta)
	}
}

func TestDedupStreakResetByNewItem(t *testing.T) {
	host := "host_streak"
	for _, id := range []string{"k1", "k2", "k3"} {
		if err := store.UpsertItem(host, feed.Item{IDStr: id}); err != nil {
			t.Fatal(err)
		}
	}

	// Two known items, then a new one, then two known: no streak reaches 3,
	// so the crawl pages on.
	f := &fakeFetcher{pages: map[string]scriptedPage{
		"":     {items: rawItems("k1", "k2", "fresh", "k3", "k1"), offset: "next"},
		"next": {items: rawItems(), offset: ""},
	}}
	a, out := newTestArchiver(t, f)

	m := state.Meta{HostMID: host, FullyFetched: true}
	if err := m.Save(filepath.Join(out, "dynamic", host)); err != nil {
		t.Fatal(err)
	}

	res, err := a.Run(context.Background(), host, Options{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if res.Pages != 2 {
		t.Fatalf("expected crawl to continue past non-threshold streaks, got %+v", res)
	}
	if res.Items != 5 {
		t.Fatalf("expected all page items kept, got %+v", res)
	}
}

func TestStopSignalHaltsAfterCurrentPage(t *testing.T) {
	host := "host_stop"
	f := &fakeFetcher{pages: map[string]scriptedPage{
		"":     {items: rawItems("s1"), offset: "cur1"},
		"cur1": {items: rawItems("s2"), offset: "cur2"},
	}}
	a, out := newTestArchiver(t, f)

	// A stop requested with no run in flight must not touch the next run.
	if a.Registry.RequestStop(host) {
		t.Fatal("RequestStop without a run should report false")
	}

	// Raise the stop while the first page is in flight; the run must still
	// finish that page before halting.
	f.onFetch = func(offset string) {
		if offset == "" {
			a.Registry.RequestStop(host)
		}
	}

	res, err := a.Run(context.Background(), host, Options{})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if res.Reason != ReasonStopped {
		t.Fatalf("expected stopped run, got %+v", res)
	}
	if res.Pages != 1 || res.Items != 1 {
		t.Fatalf("expected exactly the in-flight page archived, got %+v", res)
	}
	meta := state.Load(filepath.Join(out, "dynamic", host), host)
	if meta.FullyFetched || meta.LastOffset.Offset != "cur1" {
		t.Fatalf("expected resumable meta after stop, got %+v", meta)
	}
}

func TestArchiveDetail(t *testing.T) {
	f := &fakeFetcher{pages: map[string]scriptedPage{}}
	a, _ := newTestArchiver(t, f)

	it, err := a.ArchiveDetail(context.Background(), "d_detail_1", false)
	if err != nil {
		t.Fatalf("ArchiveDetail err: %v", err)
	}
	if it.IDStr != "d_detail_1" {
		t.Fatalf("unexpected item %+v", it)
	}
	ok, err := store.ItemExists("unknown", "d_detail_1")
	if err != nil || !ok {
		t.Fatalf("detail item not archived, ok=%v err=%v", ok, err)
	}
}
