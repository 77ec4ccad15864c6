package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dynamics-archiver-go/internal/archiver"
	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/feed"
	"dynamics-archiver-go/internal/registry"
	"dynamics-archiver-go/internal/store"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "api-test-*")
	if err != nil {
		panic(err)
	}
	config.AppConfig.StoreBackend = "sqlite"
	config.AppConfig.SQLitePath = filepath.Join(dir, "data", "bilibili_dynamic.db")
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type stubFetcher struct {
	pages   map[string]feed.Page
	release chan struct{}
}

func (f *stubFetcher) FetchSpacePage(ctx context.Context, hostMID, offset string, needTop bool) (feed.Page, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return feed.Page{}, ctx.Err()
		}
	}
	return f.pages[offset], nil
}

func (f *stubFetcher) FetchDetail(ctx context.Context, dynamicID string) (map[string]any, error) {
	return map[string]any{"id_str": dynamicID, "type": "DYNAMIC_TYPE_WORD"}, nil
}

func newTestServer(t *testing.T, f archiver.Fetcher) *Server {
	t.Helper()
	reg := registry.New()
	a := &archiver.Archiver{
		Fetcher:   f,
		Registry:  reg,
		OutputDir: t.TempDir(),
		Threshold: 10,
		JitterMin: time.Millisecond,
		JitterMax: 2 * time.Millisecond,
	}
	return NewServerWith(reg, a)
}

func getJSON(t *testing.T, srv *Server, method, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	var body map[string]any
	if rr.Body.Len() > 0 && strings.Contains(rr.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rr.Code, body
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})
	code, body := getJSON(t, srv, http.MethodGet, "/healthz")
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("healthz = %d %v", code, body)
	}
}

func TestCrawlStartStopProgress(t *testing.T) {
	f := &stubFetcher{
		pages:   map[string]feed.Page{"": {NextOffset: ""}},
		release: make(chan struct{}),
	}
	srv := newTestServer(t, f)

	code, body := getJSON(t, srv, http.MethodPost, "/space/auto/4242/start?save_media=false")
	if code != http.StatusAccepted || body["status"] != "started" {
		t.Fatalf("start = %d %v", code, body)
	}

	code, body = getJSON(t, srv, http.MethodPost, "/space/auto/4242/start")
	if code != http.StatusConflict {
		t.Fatalf("second start = %d %v", code, body)
	}

	code, body = getJSON(t, srv, http.MethodPost, "/space/auto/4242/stop")
	if code != http.StatusOK || body["stopped"] != true {
		t.Fatalf("stop = %d %v", code, body)
	}

	close(f.release)
	deadline := time.Now().Add(3 * time.Second)
	for {
		code, body = getJSON(t, srv, http.MethodGet, "/space/auto/progress")
		runs := body["runs"].([]any)
		if len(runs) == 1 && runs[0].(map[string]any)["running"] == false {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never finished: %v", body)
		}
		time.Sleep(5 * time.Millisecond)
	}

	code, body = getJSON(t, srv, http.MethodPost, "/space/auto/4242/stop")
	if code != http.StatusOK || body["stopped"] != false {
		t.Fatalf("stop after finish = %d %v", code, body)
	}
}

func TestDBEndpoints(t *testing.T) {
	host := "api_db_host"
	if err := store.UpsertItem(host, feed.Item{IDStr: "d1", Text: "hi", PublishTS: 1700000000, AuthorName: "uploader"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AttachMediaLocals(host, "d1", []string{"a.jpg", "b.png"}, nil); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, &stubFetcher{})
	hostDir := filepath.Join(srv.archiver.OutputDir, "dynamic", host)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(hostDir, "face.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	code, body := getJSON(t, srv, http.MethodGet, "/db/hosts")
	if code != http.StatusOK {
		t.Fatalf("hosts = %d %v", code, body)
	}
	var entry map[string]any
	for _, h := range body["hosts"].([]any) {
		if h.(map[string]any)["host_mid"] == host {
			entry = h.(map[string]any)
		}
	}
	if entry == nil {
		t.Fatalf("host missing from list: %v", body)
	}
	if entry["up_name"] != "uploader" {
		t.Fatalf("up_name = %v, want uploader", entry["up_name"])
	}
	if entry["face_path"] != "dynamic/"+host+"/face.jpg" {
		t.Fatalf("face_path = %v", entry["face_path"])
	}

	code, body = getJSON(t, srv, http.MethodGet, "/db/space/"+host)
	if code != http.StatusOK {
		t.Fatalf("space = %d %v", code, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", items)
	}
	locals := items[0].(map[string]any)["media_locals"].([]any)
	if len(locals) != 2 || locals[0] != "a.jpg" {
		t.Fatalf("media_locals not split: %v", locals)
	}
}

func TestDBExportXLSX(t *testing.T) {
	host := "api_export_host"
	if err := store.UpsertItem(host, feed.Item{IDStr: "d1", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, &stubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/db/space/"+host+"/export", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("export = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	// xlsx files are zip archives.
	if rr.Body.Len() < 4 || rr.Body.Bytes()[0] != 'P' || rr.Body.Bytes()[1] != 'K' {
		t.Fatal("export body is not a zip archive")
	}
}

func TestDetailEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})
	code, body := getJSON(t, srv, http.MethodGet, "/detail/998877?save_media=false")
	if code != http.StatusOK {
		t.Fatalf("detail = %d %v", code, body)
	}
	item := body["item"].(map[string]any)
	if item["IDStr"] != "998877" {
		t.Fatalf("unexpected item %v", item)
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubFetcher{})
	code, body := getJSON(t, srv, http.MethodGet, "/logs?limit=10")
	if code != http.StatusOK {
		t.Fatalf("logs = %d %v", code, body)
	}
	if _, ok := body["logs"]; !ok {
		t.Fatalf("missing logs key: %v", body)
	}
}
