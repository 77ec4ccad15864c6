package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Modules is the normalized view of an item's "modules" section. The API
// delivers it either as a keyed object or as an array of typed entries;
// callers only ever see this flat form.
type Modules struct {
	Author  map[string]any
	Stat    map[string]any
	Dynamic map[string]any
}

func ParseModules(item map[string]any) Modules {
	var out Modules
	switch raw := item["modules"].(type) {
	case map[string]any:
		out.Author, _ = raw["module_author"].(map[string]any)
		out.Stat, _ = raw["module_stat"].(map[string]any)
		out.Dynamic, _ = raw["module_dynamic"].(map[string]any)
	case []any:
		for _, entry := range raw {
			mod, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			switch mod["module_type"] {
			case "MODULE_TYPE_AUTHOR":
				if out.Author == nil {
					out.Author, _ = mod["module_author"].(map[string]any)
				}
			case "MODULE_TYPE_STAT":
				if out.Stat == nil {
					out.Stat, _ = mod["module_stat"].(map[string]any)
				}
			case "MODULE_TYPE_DYNAMIC":
				if out.Dynamic == nil {
					out.Dynamic, _ = mod["module_dynamic"].(map[string]any)
				}
			}
		}
	}
	return out
}

// ItemID resolves the stable id of an item, falling back through the known
// alternate locations. Empty result means the item cannot be persisted.
func ItemID(item map[string]any) string {
	if id := AsString(item["id_str"]); id != "" {
		return id
	}
	if basic, ok := item["basic"].(map[string]any); ok {
		if id := AsString(basic["id_str"]); id != "" {
			return id
		}
	}
	if n := ToInt64(item["id"]); n > 0 {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// Item is the flat persisted shape of one dynamic.
type Item struct {
	IDStr         string
	Type          string
	Visible       *bool
	PublishTS     int64
	CommentIDStr  string
	CommentType   int64
	RidStr        string
	Text          string
	AuthorMid     string
	AuthorName    string
	AuthorFace    string
	BVID          string
	Title         string
	Cover         string
	Desc          string
	ArticleTitle  string
	ArticleCovers string
	OpusTitle     string
	OpusSummary   string

	LikeCount    int64
	CommentCount int64
	RepostCount  int64
	ViewCount    int64
}

// NormalizeItem flattens a raw feed item. The second return is false when no
// id could be resolved; such items are skipped by callers.
func NormalizeItem(raw map[string]any) (Item, bool) {
	id := ItemID(raw)
	if id == "" {
		return Item{}, false
	}
	mods := ParseModules(raw)

	out := Item{
		IDStr:     id,
		Type:      AsString(raw["type"]),
		PublishTS: ToInt64(mods.Author["pub_ts"]),
	}
	if v, ok := raw["visible"].(bool); ok {
		out.Visible = &v
	}
	if basic, ok := raw["basic"].(map[string]any); ok {
		out.CommentIDStr = AsString(basic["comment_id_str"])
		out.CommentType = ToInt64(basic["comment_type"])
		out.RidStr = AsString(basic["rid_str"])
	}

	out.AuthorMid = AsString(mods.Author["mid"])
	if out.AuthorMid == "" {
		out.AuthorMid = AsString(mods.Author["id"])
	}
	out.AuthorName = AsString(mods.Author["name"])
	if out.AuthorName == "" {
		out.AuthorName = AsString(mods.Author["uname"])
	}
	out.AuthorFace = AsString(mods.Author["face"])

	out.Text = itemText(raw, mods)

	if major, ok := mods.Dynamic["major"].(map[string]any); ok {
		if arc, ok := major["archive"].(map[string]any); ok {
			out.BVID = AsString(arc["bvid"])
			out.Title = AsString(arc["title"])
			out.Cover = AsString(arc["cover"])
			out.Desc = AsString(arc["desc"])
		}
		if ar, ok := major["article"].(map[string]any); ok {
			out.ArticleTitle = AsString(ar["title"])
			if covers, ok := ar["covers"].([]any); ok && len(covers) > 0 {
				if b, err := json.Marshal(covers); err == nil {
					out.ArticleCovers = string(b)
				}
			}
		}
		if opus, ok := major["opus"].(map[string]any); ok {
			out.OpusTitle = AsString(opus["title"])
			if summary, ok := opus["summary"].(map[string]any); ok {
				out.OpusSummary = AsString(summary["text"])
			}
		}
	}

	out.LikeCount = statCount(mods.Stat["like"])
	out.CommentCount = statCount(mods.Stat["comment"])
	out.RepostCount = statCount(mods.Stat["repost"])
	if out.RepostCount == 0 {
		out.RepostCount = statCount(mods.Stat["forward"])
	}
	out.ViewCount = statCount(mods.Stat["view"])

	return out, true
}

func itemText(raw map[string]any, mods Modules) string {
	switch desc := mods.Dynamic["desc"].(type) {
	case map[string]any:
		if t := AsString(desc["text"]); t != "" {
			return t
		}
	case string:
		if t := strings.TrimSpace(desc); t != "" {
			return t
		}
	}
	// Array-shaped payloads sometimes carry text in a standalone module_desc.
	if list, ok := raw["modules"].([]any); ok {
		for _, entry := range list {
			mod, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if md, ok := mod["module_desc"].(map[string]any); ok {
				if t := AsString(md["text"]); t != "" {
					return t
				}
			}
		}
	}
	return ""
}

// AuthorFaceURL locates the author avatar URL across the module shapes,
// including the layered avatar structure of newer payloads.
func AuthorFaceURL(item map[string]any) string {
	mods := ParseModules(item)
	if u := AsString(mods.Author["face"]); strings.HasPrefix(u, "http") {
		return u
	}
	if user, ok := mods.Author["user"].(map[string]any); ok {
		if u := AsString(user["face"]); strings.HasPrefix(u, "http") {
			return u
		}
	}
	if avatar, ok := mods.Author["avatar"].(map[string]any); ok {
		if u := avatarLayerURL(avatar); u != "" {
			return u
		}
	}
	if user, ok := item["user"].(map[string]any); ok {
		if u := AsString(user["face"]); strings.HasPrefix(u, "http") {
			return u
		}
	}
	return ""
}

func avatarLayerURL(avatar map[string]any) string {
	fl, ok := avatar["fallback_layers"].(map[string]any)
	if !ok {
		return ""
	}
	layers, ok := fl["layers"].([]any)
	if !ok {
		return ""
	}
	for _, layer := range layers {
		lm, ok := layer.(map[string]any)
		if !ok {
			continue
		}
		res, ok := lm["resource"].(map[string]any)
		if !ok {
			continue
		}
		img, ok := res["res_image"].(map[string]any)
		if !ok {
			continue
		}
		src, ok := img["image_src"].(map[string]any)
		if !ok {
			continue
		}
		if remote, ok := src["remote"].(map[string]any); ok {
			if u := AsString(remote["url"]); strings.HasPrefix(u, "http") {
				return u
			}
		}
	}
	return ""
}

// AuthorMid resolves the item owner from the author module; 0 when unknown.
func AuthorMid(item map[string]any) int64 {
	mods := ParseModules(item)
	if n := ToInt64(mods.Author["mid"]); n > 0 {
		return n
	}
	if user, ok := mods.Author["user"].(map[string]any); ok {
		return ToInt64(user["mid"])
	}
	return 0
}

func statCount(v any) int64 {
	switch vv := v.(type) {
	case map[string]any:
		return ToInt64(vv["count"])
	default:
		return ToInt64(v)
	}
}

func AsString(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(vv)
	case float64:
		// JSON numbers decode as float64; ids must not render in e-notation.
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", vv))
	}
}

func ToInt64(v any) int64 {
	switch vv := v.(type) {
	case int64:
		return vv
	case int:
		return int64(vv)
	case float64:
		return int64(vv)
	case json.Number:
		n, _ := vv.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(vv), 10, 64)
		return n
	default:
		return 0
	}
}
