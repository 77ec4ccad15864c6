package store

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/feed"
)

func useTempSQLite(t *testing.T) {
	t.Helper()
	if sqliteInst != nil {
		_ = sqliteInst.Close()
	}
	sqliteInst = nil
	sqliteErr = nil
	sqliteOnce = sync.Once{}
	config.AppConfig.StoreBackend = "sqlite"
	config.AppConfig.SQLitePath = filepath.Join(t.TempDir(), "data", "bilibili_dynamic.db")
}

func sampleItem(id string) feed.Item {
	vis := true
	return feed.Item{
		IDStr:      id,
		Type:       "DYNAMIC_TYPE_DRAW",
		Visible:    &vis,
		PublishTS:  1700000000,
		Text:       "hello",
		AuthorMid:  "42",
		AuthorName: "alice",
		AuthorFace: "https://i0.example.com/bfs/face/a.jpg",
		LikeCount:  3,
	}
}

func TestUpsertItemIdempotent(t *testing.T) {
	useTempSQLite(t)

	if err := UpsertItem("42", sampleItem("d1")); err != nil {
		t.Fatalf("UpsertItem err: %v", err)
	}
	second := sampleItem("d1")
	second.Text = "edited"
	second.LikeCount = 9
	if err := UpsertItem("42", second); err != nil {
		t.Fatalf("UpsertItem(again) err: %v", err)
	}

	total, items, err := ListItems("42", 10, 0)
	if err != nil {
		t.Fatalf("ListItems err: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected single row, got total=%d len=%d", total, len(items))
	}
	if items[0].Text != "edited" || items[0].LikeCount != 9 {
		t.Fatalf("second save did not refresh row: %+v", items[0])
	}
}

func TestItemExists(t *testing.T) {
	useTempSQLite(t)

	ok, err := ItemExists("42", "d1")
	if err != nil {
		t.Fatalf("ItemExists err: %v", err)
	}
	if ok {
		t.Fatal("expected missing item")
	}
	if err := UpsertItem("42", sampleItem("d1")); err != nil {
		t.Fatalf("UpsertItem err: %v", err)
	}
	ok, err = ItemExists("42", "d1")
	if err != nil {
		t.Fatalf("ItemExists err: %v", err)
	}
	if !ok {
		t.Fatal("expected item to exist")
	}
}

func TestAttachMediaLocalsWriteOnce(t *testing.T) {
	useTempSQLite(t)

	if err := UpsertItem("42", sampleItem("d1")); err != nil {
		t.Fatalf("UpsertItem err: %v", err)
	}
	first := []string{"42/d1/a.jpg", "42/d1/b.png"}
	if err := AttachMediaLocals("42", "d1", first, []string{"42/d1/s.jpg", "42/d1/v.mp4"}); err != nil {
		t.Fatalf("AttachMediaLocals err: %v", err)
	}
	if err := AttachMediaLocals("42", "d1", []string{"42/d1/other.jpg"}, nil); err != nil {
		t.Fatalf("AttachMediaLocals(second) err: %v", err)
	}
	// Re-saving the item must not clobber the media columns either.
	if err := UpsertItem("42", sampleItem("d1")); err != nil {
		t.Fatalf("UpsertItem(resave) err: %v", err)
	}

	_, items, err := ListItems("42", 10, 0)
	if err != nil {
		t.Fatalf("ListItems err: %v", err)
	}
	got := items[0]
	if got.MediaLocals != strings.Join(first, ",") {
		t.Fatalf("media_locals overwritten: %q", got.MediaLocals)
	}
	if got.MediaCount != 2 {
		t.Fatalf("media_count = %d, want 2", got.MediaCount)
	}
	if got.LiveMediaLocals != "42/d1/s.jpg,42/d1/v.mp4" || got.LiveMediaCount != 2 {
		t.Fatalf("live media columns wrong: %q count=%d", got.LiveMediaLocals, got.LiveMediaCount)
	}
}

func TestListHosts(t *testing.T) {
	useTempSQLite(t)

	a := sampleItem("d1")
	b := sampleItem("d2")
	b.PublishTS = 1800000000
	b.AuthorName = "alice-renamed"
	// Newest item lacks a name; the enrichment must fall back to the most
	// recent row that has one.
	c := sampleItem("d3")
	c.PublishTS = 1900000000
	c.AuthorName = ""
	if err := UpsertItem("42", a); err != nil {
		t.Fatal(err)
	}
	if err := UpsertItem("42", b); err != nil {
		t.Fatal(err)
	}
	if err := UpsertItem("42", c); err != nil {
		t.Fatal(err)
	}
	if err := UpsertItem("77", sampleItem("d9")); err != nil {
		t.Fatal(err)
	}

	hosts, err := ListHosts(10, 0)
	if err != nil {
		t.Fatalf("ListHosts err: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", hosts)
	}
	if hosts[0].HostMID != "42" || hosts[0].ItemCount != 3 || hosts[0].LastPublishTS != 1900000000 {
		t.Fatalf("unexpected first host %+v", hosts[0])
	}
	if hosts[0].UpName != "alice-renamed" {
		t.Fatalf("up_name = %q, want latest named row", hosts[0].UpName)
	}
	if hosts[1].UpName != "alice" {
		t.Fatalf("up_name for second host = %q, want %q", hosts[1].UpName, "alice")
	}
}

func TestGetItem(t *testing.T) {
	useTempSQLite(t)

	if err := UpsertItem("42", sampleItem("d1")); err != nil {
		t.Fatal(err)
	}
	got, err := GetItem("d1")
	if err != nil {
		t.Fatalf("GetItem err: %v", err)
	}
	if got == nil || got.HostMID != "42" || got.IDStr != "d1" {
		t.Fatalf("unexpected item %+v", got)
	}
	missing, err := GetItem("nope")
	if err != nil {
		t.Fatalf("GetItem(missing) err: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing item, got %+v", missing)
	}
}
