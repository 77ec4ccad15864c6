package feed

import (
	"encoding/json"
	"testing"
)

func mustItem(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return m
}

func TestItemIDFallbacks(t *testing.T) {
	if id := ItemID(mustItem(t, `{"id_str":"100"}`)); id != "100" {
		t.Fatalf("id = %q", id)
	}
	if id := ItemID(mustItem(t, `{"basic":{"id_str":"200"}}`)); id != "200" {
		t.Fatalf("basic id = %q", id)
	}
	if id := ItemID(mustItem(t, `{"id":300}`)); id != "300" {
		t.Fatalf("numeric id = %q", id)
	}
	if id := ItemID(mustItem(t, `{"type":"DYNAMIC_TYPE_WORD"}`)); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestParseModulesObjectAndArray(t *testing.T) {
	obj := mustItem(t, `{"modules":{"module_author":{"name":"up"},"module_stat":{"like":{"count":5}},"module_dynamic":{"desc":{"text":"hi"}}}}`)
	mods := ParseModules(obj)
	if AsString(mods.Author["name"]) != "up" {
		t.Fatalf("object author = %v", mods.Author)
	}

	arr := mustItem(t, `{"modules":[
		{"module_type":"MODULE_TYPE_AUTHOR","module_author":{"name":"up2"}},
		{"module_type":"MODULE_TYPE_STAT","module_stat":{"like":7}},
		{"module_type":"MODULE_TYPE_DYNAMIC","module_dynamic":{"desc":{"text":"yo"}}}
	]}`)
	mods = ParseModules(arr)
	if AsString(mods.Author["name"]) != "up2" {
		t.Fatalf("array author = %v", mods.Author)
	}
	if statCount(mods.Stat["like"]) != 7 {
		t.Fatalf("array stat = %v", mods.Stat)
	}
}

func TestNormalizeItem(t *testing.T) {
	raw := mustItem(t, `{
		"id_str": "994477",
		"type": "DYNAMIC_TYPE_AV",
		"visible": true,
		"basic": {"comment_id_str": "c1", "comment_type": 1, "rid_str": "r1"},
		"modules": {
			"module_author": {"mid": 42, "name": "up", "face": "https://i0.hdslb.com/bfs/face/x.jpg", "pub_ts": 1700000000},
			"module_stat": {"like": {"count": 12}, "comment": {"count": 3}, "forward": {"count": 1}},
			"module_dynamic": {
				"desc": {"text": "new video"},
				"major": {"archive": {"bvid": "BV1xx", "title": "t", "cover": "https://i0.hdslb.com/bfs/archive/c.jpg", "desc": "d"}}
			}
		}
	}`)
	it, ok := NormalizeItem(raw)
	if !ok {
		t.Fatal("expected normalized item")
	}
	if it.IDStr != "994477" || it.Type != "DYNAMIC_TYPE_AV" {
		t.Fatalf("core fields: %+v", it)
	}
	if it.Visible == nil || !*it.Visible {
		t.Fatal("visible flag lost")
	}
	if it.PublishTS != 1700000000 {
		t.Fatalf("publish ts = %d", it.PublishTS)
	}
	if it.AuthorMid != "42" || it.AuthorName != "up" {
		t.Fatalf("author: %+v", it)
	}
	if it.BVID != "BV1xx" || it.Title != "t" {
		t.Fatalf("archive: %+v", it)
	}
	if it.LikeCount != 12 || it.CommentCount != 3 || it.RepostCount != 1 {
		t.Fatalf("stats: %+v", it)
	}

	if _, ok := NormalizeItem(mustItem(t, `{"type":"DYNAMIC_TYPE_WORD"}`)); ok {
		t.Fatal("item without id must not normalize")
	}
}

func TestNormalizeItemUnknownTypeKept(t *testing.T) {
	it, ok := NormalizeItem(mustItem(t, `{"id_str":"1","type":"DYNAMIC_TYPE_SOMETHING_NEW"}`))
	if !ok {
		t.Fatal("expected ok")
	}
	if it.Type != "DYNAMIC_TYPE_SOMETHING_NEW" {
		t.Fatalf("type = %q", it.Type)
	}
}

func TestAuthorFaceURL(t *testing.T) {
	direct := mustItem(t, `{"modules":{"module_author":{"face":"https://i0.hdslb.com/bfs/face/a.jpg"}}}`)
	if u := AuthorFaceURL(direct); u != "https://i0.hdslb.com/bfs/face/a.jpg" {
		t.Fatalf("direct = %q", u)
	}

	layered := mustItem(t, `{"modules":[{"module_type":"MODULE_TYPE_AUTHOR","module_author":{"avatar":{"fallback_layers":{"layers":[{"resource":{"res_image":{"image_src":{"remote":{"url":"https://i0.hdslb.com/bfs/face/b.jpg"}}}}}]}}}}]}`)
	if u := AuthorFaceURL(layered); u != "https://i0.hdslb.com/bfs/face/b.jpg" {
		t.Fatalf("layered = %q", u)
	}

	fallback := mustItem(t, `{"user":{"face":"https://i0.hdslb.com/bfs/face/c.jpg"}}`)
	if u := AuthorFaceURL(fallback); u != "https://i0.hdslb.com/bfs/face/c.jpg" {
		t.Fatalf("fallback = %q", u)
	}
}
