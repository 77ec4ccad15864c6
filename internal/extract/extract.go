// Package extract pulls downloadable media references out of raw feed items.
// Items are arbitrarily nested and their schema drifts between dynamic types,
// so collection is a generic walk gated by ancestor-key predicates instead of
// per-type field lookups.
package extract

import (
	"sort"
	"strings"
)

// LivePair is a "live photo" asset: a still image plus its short video.
type LivePair struct {
	ImageURL string
	VideoURL string
}

// Emoji is a custom emote: its icon URL and the display text without the
// surrounding bracket delimiters.
type Emoji struct {
	URL  string
	Text string
}

// Media is everything harvestable from one item.
type Media struct {
	Images    []string
	LivePairs []LivePair
	Emoji     []Emoji
}

func Collect(item map[string]any) Media {
	return Media{
		Images:    CollectImageURLs(item),
		LivePairs: CollectLivePairs(item),
		Emoji:     CollectEmoji(item),
	}
}

// skippedLabelKeys are known badge/label image fields excluded outright.
var skippedLabelKeys = map[string]struct{}{
	"img_label_uri_hans":        {},
	"img_label_uri_hans_static": {},
	"img_label_uri_hant":        {},
	"img_label_uri_hant_static": {},
	"label_theme":               {},
}

// CollectImageURLs walks the item and gathers content image URLs, excluding
// anything under label, avatar, decoration, or interaction context, and
// excluding emoji nodes (those belong to CollectEmoji).
func CollectImageURLs(item map[string]any) []string {
	var out []string
	seen := map[string]struct{}{}
	walk(item, nil, func(path []string, node any) bool {
		lower := lowerPath(path)
		if inLabelContext(lower) || inAvatarContext(lower) || inDecorateContext(lower) || inInteractionContext(lower) {
			return false
		}
		if isEmojiNode(node) {
			return false
		}
		s, ok := node.(string)
		if !ok {
			return true
		}
		if !LooksLikeImageURL(s) {
			return true
		}
		low := strings.ToLower(s)
		// Avatar CDN paths show up outside the explicit avatar fields too.
		if strings.Contains(low, "/bfs/face/") || strings.Contains(low, "/face/") {
			return true
		}
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return true
	})
	return out
}

// CollectLivePairs finds nodes carrying both a still URL and a live video URL.
func CollectLivePairs(item map[string]any) []LivePair {
	var out []LivePair
	walk(item, nil, func(path []string, node any) bool {
		m, ok := node.(map[string]any)
		if !ok {
			return true
		}
		img, _ := m["url"].(string)
		live, _ := m["live_url"].(string)
		if img != "" && live != "" && live != "null" {
			out = append(out, LivePair{ImageURL: img, VideoURL: live})
		}
		return true
	})
	return out
}

// CollectEmoji finds rich-text emoji nodes with an icon URL and display text.
func CollectEmoji(item map[string]any) []Emoji {
	var out []Emoji
	seen := map[string]struct{}{}
	walk(item, nil, func(path []string, node any) bool {
		m, ok := node.(map[string]any)
		if !ok {
			return true
		}
		if m["type"] != "RICH_TEXT_NODE_TYPE_EMOJI" {
			return true
		}
		emoji, ok := m["emoji"].(map[string]any)
		if !ok {
			return true
		}
		icon, _ := emoji["icon_url"].(string)
		text, _ := emoji["text"].(string)
		text = strings.Trim(text, "[]")
		if icon == "" || text == "" {
			return true
		}
		if _, dup := seen[icon]; !dup {
			seen[icon] = struct{}{}
			out = append(out, Emoji{URL: icon, Text: text})
		}
		return true
	})
	return out
}

// LooksLikeImageURL reports whether s is a plausible content image URL: an
// absolute http(s) URL with an image extension, or one on the image CDN
// (its /bfs/ paths often omit the extension).
func LooksLikeImageURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	lower := strings.ToLower(s)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return strings.Contains(lower, "/bfs/")
}

// walk visits every node depth-first, keeping the stack of ancestor keys.
// Map keys are visited in sorted order so collection order is deterministic.
// visit returns false to prune the subtree.
func walk(node any, path []string, visit func(path []string, node any) bool) {
	if !visit(path, node) {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			if _, skip := skippedLabelKeys[strings.ToLower(k)]; skip {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], append(path, k), visit)
		}
	case []any:
		for _, item := range v {
			walk(item, append(path, "[]"), visit)
		}
	}
}

func lowerPath(path []string) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = strings.ToLower(p)
	}
	return out
}

func inLabelContext(path []string) bool {
	for _, p := range path {
		if p == "label" {
			return true
		}
	}
	return false
}

func inAvatarContext(path []string) bool {
	for _, p := range path {
		switch p {
		case "avatar", "face", "avatar_subscript_url":
			return true
		}
	}
	return false
}

func inDecorateContext(path []string) bool {
	for _, p := range path {
		switch p {
		case "decorate", "decorate_card", "decoration_card":
			return true
		}
	}
	return false
}

func inInteractionContext(path []string) bool {
	for _, p := range path {
		if p == "module_interaction" {
			return true
		}
	}
	return false
}

func isEmojiNode(node any) bool {
	m, ok := node.(map[string]any)
	if !ok {
		return false
	}
	if m["type"] == "RICH_TEXT_NODE_TYPE_EMOJI" {
		return true
	}
	if emoji, ok := m["emoji"].(map[string]any); ok {
		_, hasIcon := emoji["icon_url"]
		_, hasText := emoji["text"]
		return hasIcon && hasText
	}
	return false
}
