// Package media downloads the assets referenced by archived feed items into a
// per-owner directory on disk. Local paths are predictable from the source URL
// so reruns skip work already done and database rows can point at files that
// are about to exist.
package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/crawler"
	"dynamics-archiver-go/internal/extract"
)

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

// unsafeFilenameChars matches characters that cannot appear in filenames on
// common filesystems.
var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Outcome reports one image download attempt. Path is the file on disk when
// OK is true, and the predicted local path otherwise, so callers can record
// where the file will land once a later run succeeds.
type Outcome struct {
	URL  string
	Path string
	OK   bool
}

// LiveLocal is the pair of on-disk paths for one downloaded live photo.
type LiveLocal struct {
	ImagePath string
	VideoPath string
}

// Harvester downloads images, live photo pairs, and emoji icons beneath Dir.
// Client is swappable for tests.
type Harvester struct {
	Client *http.Client
	Dir    string

	ImageLimit int
	LiveLimit  int
	EmojiLimit int
}

// NewHarvester builds a harvester rooted at dir with limits and the download
// timeout taken from configuration.
func NewHarvester(dir string) *Harvester {
	timeoutSec := config.AppConfig.DownloadTimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 20
	}
	h := &Harvester{
		Client:     &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		Dir:        dir,
		ImageLimit: config.AppConfig.ImageConcurrency,
		LiveLimit:  config.AppConfig.LiveMediaConcurrency,
		EmojiLimit: config.AppConfig.EmojiConcurrency,
	}
	if h.ImageLimit <= 0 {
		h.ImageLimit = 6
	}
	if h.LiveLimit <= 0 {
		h.LiveLimit = 3
	}
	if h.EmojiLimit <= 0 {
		h.EmojiLimit = 6
	}
	return h
}

// PredictImagePath returns the local path an image URL will be saved to. The
// URL's basename is used when it carries a known image extension; otherwise
// the name is the md5 of the URL with ".jpg" assumed. A sniffed download may
// land under a different extension than predicted.
func (h *Harvester) PredictImagePath(rawURL string) string {
	n, ext := stemFor(rawURL)
	if ext == "" {
		ext = ".jpg"
	}
	return filepath.Join(h.Dir, n+ext)
}

// DownloadImages fetches each distinct URL concurrently and reports one
// outcome per URL, first occurrence order. A failed URL still yields an
// outcome carrying its predicted path, so the caller can record the full
// URL-to-path mapping even when some downloads fail. Individual failures are
// logged; they never abort the batch.
func (h *Harvester) DownloadImages(ctx context.Context, urls []string) []Outcome {
	urls = dedupFirstSeen(urls)
	out := make([]Outcome, len(urls))
	for i, u := range urls {
		out[i] = Outcome{URL: u, Path: h.PredictImagePath(u)}
	}
	type job struct {
		idx int
		url string
	}
	jobs := make([]job, len(urls))
	for i, u := range urls {
		jobs[i] = job{idx: i, url: u}
	}
	crawler.ForEachLimit(ctx, jobs, h.ImageLimit, func(ctx context.Context, j job) error {
		p, err := h.fetchImage(ctx, j.url)
		if err != nil {
			slog.Warn("image download failed", "url", j.url, "err", err)
			return err
		}
		out[j.idx].Path = p
		out[j.idx].OK = true
		return nil
	})
	return out
}

// DownloadLivePairs fetches live photos. A pair is only reported when both
// the still and the video leg are on disk; a half-downloaded pair is dropped
// so it is retried whole on the next run.
func (h *Harvester) DownloadLivePairs(ctx context.Context, pairs []extract.LivePair) []LiveLocal {
	pairs = dedupPairs(pairs)
	locals := make([]LiveLocal, len(pairs))
	type job struct {
		idx  int
		pair extract.LivePair
	}
	jobs := make([]job, len(pairs))
	for i, p := range pairs {
		jobs[i] = job{idx: i, pair: p}
	}
	crawler.ForEachLimit(ctx, jobs, h.LiveLimit, func(ctx context.Context, j job) error {
		img, err := h.fetchImage(ctx, j.pair.ImageURL)
		if err != nil {
			slog.Warn("live still download failed", "url", j.pair.ImageURL, "err", err)
			return err
		}
		vid, err := h.fetchVideo(ctx, j.pair.VideoURL)
		if err != nil {
			slog.Warn("live video download failed", "url", j.pair.VideoURL, "err", err)
			return err
		}
		locals[j.idx] = LiveLocal{ImagePath: img, VideoPath: vid}
		return nil
	})
	out := make([]LiveLocal, 0, len(locals))
	for _, l := range locals {
		if l.ImagePath != "" && l.VideoPath != "" {
			out = append(out, l)
		}
	}
	return out
}

// DownloadEmojis fetches emoji icons, naming each file after its display text.
func (h *Harvester) DownloadEmojis(ctx context.Context, emojis []extract.Emoji) []string {
	paths := make([]string, len(emojis))
	type job struct {
		idx   int
		emoji extract.Emoji
	}
	jobs := make([]job, len(emojis))
	for i, e := range emojis {
		jobs[i] = job{idx: i, emoji: e}
	}
	crawler.ForEachLimit(ctx, jobs, h.EmojiLimit, func(ctx context.Context, j job) error {
		name := unsafeFilenameChars.ReplaceAllString(j.emoji.Text, "_") + ".png"
		p, err := h.fetchTo(ctx, j.emoji.URL, filepath.Join(h.Dir, "emoji", name), "image")
		if err != nil {
			slog.Warn("emoji download failed", "url", j.emoji.URL, "err", err)
			return err
		}
		paths[j.idx] = p
		return nil
	})
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DownloadAvatar saves the owner's avatar as face.<ext> in the owner
// directory, once. An already cached avatar is left alone.
func (h *Harvester) DownloadAvatar(ctx context.Context, faceURL string) (string, error) {
	if faceURL == "" {
		return "", nil
	}
	ext := urlExt(faceURL)
	if ext == "" {
		ext = ".jpg"
	}
	if existing := findWithStem(h.Dir, "face"); existing != "" {
		return existing, nil
	}
	return h.fetchTo(ctx, faceURL, filepath.Join(h.Dir, "face"+ext), "image")
}

func (h *Harvester) fetchImage(ctx context.Context, rawURL string) (string, error) {
	name, ext := stemFor(rawURL)
	if ext != "" {
		return h.fetchTo(ctx, rawURL, filepath.Join(h.Dir, name+ext), "image")
	}
	// Extension unknown until the bytes are sniffed; a prior run may have
	// stored it under any of the image extensions.
	if existing := findWithStem(h.Dir, name); existing != "" {
		return existing, nil
	}
	data, err := h.fetch(ctx, rawURL, "image")
	if err != nil {
		return "", err
	}
	sniffed := sniffImageExt(data)
	if sniffed == "" {
		sniffed = ".jpg"
	}
	p := filepath.Join(h.Dir, name+sniffed)
	if err := writeFile(p, data); err != nil {
		return "", err
	}
	return p, nil
}

func (h *Harvester) fetchVideo(ctx context.Context, rawURL string) (string, error) {
	name, _ := stemFor(rawURL)
	return h.fetchTo(ctx, rawURL, filepath.Join(h.Dir, name+".mp4"), "")
}

// fetchTo downloads rawURL to dst unless dst already exists, verifying the
// response content type contains wantType when given.
func (h *Harvester) fetchTo(ctx context.Context, rawURL, dst, wantType string) (string, error) {
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	data, err := h.fetch(ctx, rawURL, wantType)
	if err != nil {
		return "", err
	}
	if err := writeFile(dst, data); err != nil {
		return "", err
	}
	return dst, nil
}

func (h *Harvester) fetch(ctx context.Context, rawURL, wantType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("referer", "https://www.bilibili.com/")
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, crawler.NewHTTPStatusError(rawURL, resp.StatusCode, "")
	}
	if wantType != "" {
		// A missing Content-Type counts as a mismatch; risk-control pages
		// served without one must not be saved as media.
		ct := resp.Header.Get("Content-Type")
		if !strings.Contains(ct, wantType) {
			return nil, fmt.Errorf("unexpected content type %q for %s", ct, rawURL)
		}
	}
	return io.ReadAll(resp.Body)
}

func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// dedupFirstSeen drops repeated URLs, keeping first occurrence order. Repeats
// would race concurrent writes to the same predicted path.
func dedupFirstSeen(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func dedupPairs(pairs []extract.LivePair) []extract.LivePair {
	seen := make(map[extract.LivePair]struct{}, len(pairs))
	out := make([]extract.LivePair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// stemFor picks the file stem for a URL: the basename when it has a known
// image extension, otherwise the md5 of the whole URL with no extension.
func stemFor(rawURL string) (name, ext string) {
	if e := urlExt(rawURL); e != "" {
		u, err := url.Parse(rawURL)
		if err == nil {
			base := path.Base(u.Path)
			base = unsafeFilenameChars.ReplaceAllString(base, "_")
			return strings.TrimSuffix(base, path.Ext(base)), e
		}
	}
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:]), ""
}

// urlExt returns the lowercased image extension of the URL path, or "".
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := imageExts[ext]; ok {
		return ext
	}
	return ""
}

// findWithStem returns an existing file named stem.<any image ext> under dir.
func findWithStem(dir, stem string) string {
	for ext := range imageExts {
		p := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func sniffImageExt(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	}
	return ""
}
