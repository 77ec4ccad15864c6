// Package archiver drives the incremental crawl of one owner's feed: page by
// page through the cursor, persisting items and their media, and recording
// the cursor after every page so an interrupted run resumes where it left.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"dynamics-archiver-go/internal/cache"
	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/crawler"
	"dynamics-archiver-go/internal/extract"
	"dynamics-archiver-go/internal/feed"
	"dynamics-archiver-go/internal/media"
	"dynamics-archiver-go/internal/proxy"
	"dynamics-archiver-go/internal/registry"
	"dynamics-archiver-go/internal/state"
	"dynamics-archiver-go/internal/store"
)

// Reason explains why a run ended.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonError     = "error"
)

// Result summarizes one finished run.
type Result struct {
	HostMID string `json:"host_mid"`
	Pages   int    `json:"pages"`
	Items   int    `json:"items"`
	Reason  string `json:"reason"`
}

// Fetcher is the slice of the feed client the archiver needs.
type Fetcher interface {
	FetchSpacePage(ctx context.Context, hostMID, offset string, needTop bool) (feed.Page, error)
	FetchDetail(ctx context.Context, dynamicID string) (map[string]any, error)
}

// Options tunes a single run.
type Options struct {
	NeedTop   bool
	SaveMedia bool
}

// Archiver owns the crawl loop. Fetcher and MediaClient are swappable for
// tests; everything else comes from configuration.
type Archiver struct {
	Fetcher     Fetcher
	Registry    *registry.CrawlRegistry
	Cache       cache.Cache
	OutputDir   string
	Threshold   int
	JitterMin   time.Duration
	JitterMax   time.Duration
	MediaClient *http.Client
}

func New(reg *registry.CrawlRegistry, c cache.Cache) *Archiver {
	cfg := config.AppConfig
	threshold := cfg.DedupThreshold
	if threshold <= 0 {
		threshold = 10
	}
	jitterMin := time.Duration(cfg.PageJitterMinMs) * time.Millisecond
	jitterMax := time.Duration(cfg.PageJitterMaxMs) * time.Millisecond
	if jitterMin <= 0 || jitterMax < jitterMin {
		jitterMin, jitterMax = 3*time.Second, 5*time.Second
	}
	out := cfg.OutputDir
	if out == "" {
		out = "output"
	}
	client := feed.NewClient()
	if cfg.EnableIPProxy {
		client.InitProxyPool(proxy.NewPool(proxy.NewStaticFromConfigOrEnv(), cfg.IPProxyPoolCount))
	}
	return &Archiver{
		Fetcher:   client,
		Registry:  reg,
		Cache:     c,
		OutputDir: out,
		Threshold: threshold,
		JitterMin: jitterMin,
		JitterMax: jitterMax,
	}
}

func (a *Archiver) hostDir(hostMID string) string {
	return filepath.Join(a.OutputDir, "dynamic", hostMID)
}

// Run crawls one owner until the cursor runs out, a stop is requested, or a
// page fails. The starting point depends on the last run: a fully fetched
// archive restarts from the head to pick up new items, anything else resumes
// from the recorded cursor.
func (a *Archiver) Run(ctx context.Context, hostMID string, opts Options) (Result, error) {
	res := Result{HostMID: hostMID}

	stop, err := a.Registry.Begin(hostMID)
	if err != nil {
		res.Reason = ReasonError
		return res, err
	}
	finishMsg := ""
	defer func() { a.Registry.Finish(hostMID, finishMsg) }()

	hostDir := a.hostDir(hostMID)
	meta := state.Load(hostDir, hostMID)
	fromHead := meta.FullyFetched
	cursor := ""
	if !fromHead {
		cursor = meta.LastOffset.Offset
	}
	if fromHead {
		slog.Info("crawl start from head", "host_mid", hostMID)
	} else {
		slog.Info("crawl resume", "host_mid", hostMID, "offset", cursor)
	}
	a.Registry.SetProgress(hostMID, 0, 0, cursor, "starting")

	avatarSaved := false
	consecutiveDuplicates := 0

	for {
		if !crawler.SleepJitter(ctx, a.JitterMin, a.JitterMax) {
			res.Reason = ReasonStopped
			return res, nil
		}

		page, err := a.Fetcher.FetchSpacePage(ctx, hostMID, cursor, opts.NeedTop)
		if err != nil {
			finishMsg = err.Error()
			res.Reason = ReasonError
			a.Registry.SetProgress(hostMID, res.Pages, res.Items, cursor, "page fetch failed: "+err.Error())
			return res, err
		}
		cursor = page.NextOffset
		items := page.Items

		// On a head restart, a run of already archived items means the
		// previous crawl's territory is reached: drop the run and stop
		// paging. Items before the run on the same page are still new.
		if fromHead {
			items, cursor, consecutiveDuplicates, err = a.trimKnownRun(ctx, hostMID, items, cursor, consecutiveDuplicates)
			if err != nil {
				finishMsg = err.Error()
				res.Reason = ReasonError
				return res, err
			}
		}

		res.Pages++
		res.Items += len(items)
		a.Registry.SetProgress(hostMID, res.Pages, res.Items, cursor,
			fmt.Sprintf("page %d done, %d new items", res.Pages, len(items)))

		for _, raw := range items {
			it, ok := feed.NormalizeItem(raw)
			if !ok {
				continue
			}
			if !avatarSaved && it.AuthorFace != "" {
				a.saveAvatar(ctx, hostDir, it.AuthorFace)
				avatarSaved = true
			}
			if err := a.persistItem(ctx, hostMID, raw, it, opts.SaveMedia); err != nil {
				slog.Warn("item persist failed", "host_mid", hostMID, "id_str", it.IDStr, "err", err)
			}
		}

		meta.LastFetchTime = time.Now().Unix()
		meta.LastOffset = state.Offset{Offset: cursor}
		meta.FullyFetched = cursor == ""
		if err := meta.Save(hostDir); err != nil {
			slog.Warn("meta save failed", "host_mid", hostMID, "err", err)
		}

		if cursor == "" {
			res.Reason = ReasonCompleted
			a.Registry.SetProgress(hostMID, res.Pages, res.Items, "",
				fmt.Sprintf("crawl complete: %d items over %d pages", res.Items, res.Pages))
			return res, nil
		}
		if stop.Raised() || ctx.Err() != nil {
			res.Reason = ReasonStopped
			a.Registry.SetProgress(hostMID, res.Pages, res.Items, cursor,
				fmt.Sprintf("stopped after page %d, %d items archived", res.Pages, res.Items))
			return res, nil
		}
	}
}

// trimKnownRun counts consecutive already-archived items across pages. When
// the count reaches the threshold, the trailing run is cut from the page and
// the cursor is cleared to end the crawl.
func (a *Archiver) trimKnownRun(ctx context.Context, hostMID string, items []map[string]any, cursor string, streak int) ([]map[string]any, string, int, error) {
	runStart := -1
	for i, raw := range items {
		id := feed.ItemID(raw)
		if id == "" {
			streak = 0
			runStart = -1
			continue
		}
		exists, err := a.itemExists(ctx, hostMID, id)
		if err != nil {
			return nil, cursor, streak, err
		}
		if !exists {
			streak = 0
			runStart = -1
			continue
		}
		if streak == 0 {
			runStart = i
		}
		streak++
		if streak >= a.Threshold {
			slog.Info("known territory reached", "host_mid", hostMID, "streak", streak)
			if runStart < 0 {
				runStart = 0
			}
			return items[:runStart], "", streak, nil
		}
	}
	return items, cursor, streak, nil
}

func (a *Archiver) itemExists(ctx context.Context, hostMID, idStr string) (bool, error) {
	key := "exists:" + hostMID + ":" + idStr
	if a.Cache != nil {
		if _, hit, err := a.Cache.Get(ctx, key); err == nil && hit {
			return true, nil
		}
	}
	exists, err := store.ItemExists(hostMID, idStr)
	if err != nil {
		return false, err
	}
	if exists && a.Cache != nil {
		_ = a.Cache.Set(ctx, key, []byte("1"), 0)
	}
	return exists, nil
}

func (a *Archiver) persistItem(ctx context.Context, hostMID string, raw map[string]any, it feed.Item, saveMedia bool) error {
	if err := store.UpsertItem(hostMID, it); err != nil {
		return err
	}
	if a.Cache != nil {
		_ = a.Cache.Set(ctx, "exists:"+hostMID+":"+it.IDStr, []byte("1"), 0)
	}
	if !saveMedia {
		return nil
	}

	m := extract.Collect(raw)
	if len(m.Images) == 0 && len(m.LivePairs) == 0 && len(m.Emoji) == 0 {
		return nil
	}

	itemDir := filepath.Join(a.hostDir(hostMID), it.IDStr)
	h := a.newHarvester(itemDir)

	// Image paths are recorded whether or not the download succeeded so the
	// stored mapping covers every URL the item references; a rerun fills in
	// the files at the predicted locations.
	var locals []string
	for _, o := range h.DownloadImages(ctx, m.Images) {
		locals = append(locals, a.relPath(o.Path))
	}
	locals = append(locals, a.relPaths(h.DownloadEmojis(ctx, m.Emoji))...)
	var liveLocals []string
	for _, pair := range h.DownloadLivePairs(ctx, m.LivePairs) {
		liveLocals = append(liveLocals, a.relPath(pair.ImagePath), a.relPath(pair.VideoPath))
	}
	return store.AttachMediaLocals(hostMID, it.IDStr, locals, liveLocals)
}

func (a *Archiver) saveAvatar(ctx context.Context, hostDir, faceURL string) {
	h := a.newHarvester(hostDir)
	if _, err := h.DownloadAvatar(ctx, faceURL); err != nil {
		slog.Warn("avatar save failed", "url", faceURL, "err", err)
	}
}

func (a *Archiver) newHarvester(dir string) *media.Harvester {
	h := media.NewHarvester(dir)
	if a.MediaClient != nil {
		h.Client = a.MediaClient
	}
	return h
}

func (a *Archiver) relPath(p string) string {
	rel, err := filepath.Rel(a.OutputDir, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func (a *Archiver) relPaths(ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, a.relPath(p))
	}
	return out
}

// RunMany crawls several owners with bounded concurrency.
func (a *Archiver) RunMany(ctx context.Context, hostMIDs []string, opts Options) crawler.ItemResult {
	limit := config.AppConfig.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	return crawler.ForEachLimit(ctx, hostMIDs, limit, func(ctx context.Context, hostMID string) error {
		res, err := a.Run(ctx, hostMID, opts)
		if err != nil {
			slog.Error("crawl failed", "host_mid", hostMID, "err", err)
			return err
		}
		slog.Info("crawl finished", "host_mid", hostMID, "pages", res.Pages, "items", res.Items, "reason", res.Reason)
		return nil
	})
}

// ArchiveDetail fetches a single dynamic by id and persists it the same way
// the feed crawl would.
func (a *Archiver) ArchiveDetail(ctx context.Context, dynamicID string, saveMedia bool) (*feed.Item, error) {
	raw, err := a.Fetcher.FetchDetail(ctx, dynamicID)
	if err != nil {
		return nil, err
	}
	it, ok := feed.NormalizeItem(raw)
	if !ok {
		return nil, fmt.Errorf("dynamic %s has no resolvable id", dynamicID)
	}
	hostMID := it.AuthorMid
	if hostMID == "" {
		hostMID = "unknown"
	}
	if err := a.persistItem(ctx, hostMID, raw, it, saveMedia); err != nil {
		return nil, err
	}
	return &it, nil
}
