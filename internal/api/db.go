package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"dynamics-archiver-go/internal/store"
)

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleDBHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := store.ListHosts(intQuery(r, "limit", 50), intQuery(r, "offset", 0))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if hosts == nil {
		hosts = []store.HostStats{}
	}
	for i := range hosts {
		hosts[i].FacePath = s.facePath(hosts[i].HostMID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hosts": hosts})
}

// facePath returns the owner's cached avatar relative to the output root, or
// "" when none has been saved yet. The avatar lives on disk, not in the
// database, so it is resolved here rather than by the store.
func (s *Server) facePath(hostMID string) string {
	dir := filepath.Join(s.archiver.OutputDir, "dynamic", hostMID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "face.") {
			return path.Join("dynamic", hostMID, e.Name())
		}
	}
	return ""
}

func (s *Server) handleDBSpace(w http.ResponseWriter, r *http.Request) {
	hostMID := r.PathValue("host_mid")
	total, items, err := store.ListItems(hostMID, intQuery(r, "limit", 20), intQuery(r, "offset", 0))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, itemToAPI(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"host_mid": hostMID,
		"total":    total,
		"items":    out,
	})
}

func (s *Server) handleDBExport(w http.ResponseWriter, r *http.Request) {
	hostMID := r.PathValue("host_mid")
	data, err := store.ExportHostXLSX(hostMID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+store.ExportFilename(hostMID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// itemToAPI splits the comma-joined media columns into arrays for clients.
func itemToAPI(it store.ItemRow) map[string]any {
	return map[string]any{
		"host_mid":          it.HostMID,
		"id_str":            it.IDStr,
		"type":              it.Type,
		"visible":           it.Visible,
		"publish_ts":        it.PublishTS,
		"comment_id_str":    it.CommentIDStr,
		"comment_type":      it.CommentType,
		"rid_str":           it.RidStr,
		"txt":               it.Text,
		"author_name":       it.AuthorName,
		"bvid":              it.BVID,
		"title":             it.Title,
		"cover":             it.Cover,
		"desc":              it.Desc,
		"article_title":     it.ArticleTitle,
		"article_covers":    it.ArticleCovers,
		"opus_title":        it.OpusTitle,
		"opus_summary_text": it.OpusSummary,
		"media_locals":      splitLocals(it.MediaLocals),
		"media_count":       it.MediaCount,
		"live_media_locals": splitLocals(it.LiveMediaLocals),
		"live_media_count":  it.LiveMediaCount,
		"fetch_time":        it.FetchTime,
		"like_count":        it.LikeCount,
		"comment_count":     it.CommentCount,
		"repost_count":      it.RepostCount,
		"view_count":        it.ViewCount,
	}
}

func splitLocals(joined string) []string {
	out := []string{}
	for _, p := range strings.Split(joined, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
