package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"dynamics-archiver-go/internal/feed"
)

// HostStats summarizes one archived owner. UpName is the latest non-empty
// author name seen for the owner; FacePath is filled by the API layer from
// the cached avatar on disk.
type HostStats struct {
	HostMID       string `json:"host_mid"`
	UpName        string `json:"up_name"`
	FacePath      string `json:"face_path"`
	ItemCount     int64  `json:"item_count"`
	LastPublishTS int64  `json:"last_publish_ts"`
	LastFetchTime int64  `json:"last_fetch_time"`
}

// ItemRow is one dynamic_core row joined with its stat counters.
type ItemRow struct {
	HostMID         string `json:"host_mid"`
	IDStr           string `json:"id_str"`
	Type            string `json:"type"`
	Visible         *bool  `json:"visible"`
	PublishTS       int64  `json:"publish_ts"`
	CommentIDStr    string `json:"comment_id_str"`
	CommentType     int64  `json:"comment_type"`
	RidStr          string `json:"rid_str"`
	Text            string `json:"txt"`
	AuthorName      string `json:"author_name"`
	BVID            string `json:"bvid"`
	Title           string `json:"title"`
	Cover           string `json:"cover"`
	Desc            string `json:"desc"`
	ArticleTitle    string `json:"article_title"`
	ArticleCovers   string `json:"article_covers"`
	OpusTitle       string `json:"opus_title"`
	OpusSummary     string `json:"opus_summary_text"`
	MediaLocals     string `json:"media_locals"`
	MediaCount      int64  `json:"media_count"`
	LiveMediaLocals string `json:"live_media_locals"`
	LiveMediaCount  int64  `json:"live_media_count"`
	FetchTime       int64  `json:"fetch_time"`
	LikeCount       int64  `json:"like_count"`
	CommentCount    int64  `json:"comment_count"`
	RepostCount     int64  `json:"repost_count"`
	ViewCount       int64  `json:"view_count"`
}

func sqlDB() (*sql.DB, sqlBackendKind, error) {
	k := backendKind()
	switch k {
	case backendSQLite:
		db, err := sqliteDB()
		return db, k, err
	case backendMySQL:
		db, err := mysqlDB()
		return db, k, err
	case backendPostgres:
		db, err := postgresDB()
		return db, k, err
	}
	return nil, k, errors.New("not a sql backend")
}

// UpsertItem writes the flattened item into dynamic_core, dynamic_author and
// dynamic_stat. Saving the same item again refreshes every column except the
// media ones, which only AttachMediaLocals may fill.
func UpsertItem(hostMID string, it feed.Item) error {
	if strings.TrimSpace(it.IDStr) == "" {
		return errors.New("id_str is empty")
	}
	if backendKind() == backendMongoDB {
		return mongoUpsertItem(hostMID, it)
	}
	db, k, err := sqlDB()
	if err != nil {
		return err
	}

	var visible any
	if it.Visible != nil {
		if *it.Visible {
			visible = 1
		} else {
			visible = 0
		}
	}
	now := time.Now().Unix()

	coreUpdate := []string{
		"type", "visible", "publish_ts", "comment_id_str", "comment_type",
		"rid_str", "txt", "author_name", "bvid", "title", "cover", "description",
		"article_title", "article_covers", "opus_title", "opus_summary_text",
		"fetch_time",
	}
	core := upsertStmt(k, "dynamic_core",
		[]string{
			"host_mid", "id_str", "type", "visible", "publish_ts",
			"comment_id_str", "comment_type", "rid_str", "txt", "author_name",
			"bvid", "title", "cover", "description", "article_title",
			"article_covers", "opus_title", "opus_summary_text",
			"media_locals", "media_count", "live_media_locals",
			"live_media_count", "fetch_time",
		},
		coreUpdate,
	)
	if _, err := db.Exec(core,
		hostMID, it.IDStr, it.Type, visible, it.PublishTS,
		it.CommentIDStr, it.CommentType, it.RidStr, it.Text, it.AuthorName,
		it.BVID, it.Title, it.Cover, it.Desc, it.ArticleTitle,
		it.ArticleCovers, it.OpusTitle, it.OpusSummary,
		"", 0, "", 0, now,
	); err != nil {
		return err
	}

	author := upsertStmt(k, "dynamic_author",
		[]string{"host_mid", "id_str", "author_mid", "author_name", "face"},
		[]string{"author_mid", "author_name", "face"},
	)
	if _, err := db.Exec(author, hostMID, it.IDStr, it.AuthorMid, it.AuthorName, it.AuthorFace); err != nil {
		return err
	}

	stat := upsertStmt(k, "dynamic_stat",
		[]string{"host_mid", "id_str", "like_count", "comment_count", "repost_count", "view_count"},
		[]string{"like_count", "comment_count", "repost_count", "view_count"},
	)
	_, err = db.Exec(stat, hostMID, it.IDStr, it.LikeCount, it.CommentCount, it.RepostCount, it.ViewCount)
	return err
}

// ItemExists reports whether the item is already archived for the owner.
func ItemExists(hostMID, idStr string) (bool, error) {
	if backendKind() == backendMongoDB {
		return mongoItemExists(hostMID, idStr)
	}
	db, k, err := sqlDB()
	if err != nil {
		return false, err
	}
	var one int
	err = db.QueryRow(
		rebind(k, `SELECT 1 FROM dynamic_core WHERE host_mid = ? AND id_str = ? LIMIT 1`),
		hostMID, idStr,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AttachMediaLocals records the local media paths for an item, but only into
// columns that are still empty. Paths are stored comma-joined; live paths
// interleave each pair's still and video legs.
func AttachMediaLocals(hostMID, idStr string, mediaLocals, liveLocals []string) error {
	if len(mediaLocals) == 0 && len(liveLocals) == 0 {
		return nil
	}
	if backendKind() == backendMongoDB {
		return mongoAttachMediaLocals(hostMID, idStr, mediaLocals, liveLocals)
	}
	db, k, err := sqlDB()
	if err != nil {
		return err
	}
	_, err = db.Exec(rebind(k, `
		UPDATE dynamic_core SET
			media_locals = CASE
				WHEN media_locals IS NULL OR media_locals = '' THEN ?
				ELSE media_locals
			END,
			media_count = CASE
				WHEN media_locals IS NULL OR media_locals = '' THEN ?
				ELSE media_count
			END,
			live_media_locals = CASE
				WHEN live_media_locals IS NULL OR live_media_locals = '' THEN ?
				ELSE live_media_locals
			END,
			live_media_count = CASE
				WHEN live_media_locals IS NULL OR live_media_locals = '' THEN ?
				ELSE live_media_count
			END
		WHERE host_mid = ? AND id_str = ?`),
		strings.Join(mediaLocals, ","), len(mediaLocals),
		strings.Join(liveLocals, ","), len(liveLocals),
		hostMID, idStr,
	)
	return err
}

// ListHosts returns the owners present in the archive, most recently active
// first.
func ListHosts(limit, offset int) ([]HostStats, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if backendKind() == backendMongoDB {
		return mongoListHosts(limit, offset)
	}
	db, k, err := sqlDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(rebind(k, `
		SELECT c.host_mid,
		       COALESCE((
		           SELECT n.author_name FROM dynamic_core n
		           WHERE n.host_mid = c.host_mid AND n.author_name <> ''
		           ORDER BY n.publish_ts DESC, n.fetch_time DESC
		           LIMIT 1
		       ), '') AS up_name,
		       COUNT(*) AS item_count,
		       COALESCE(MAX(c.publish_ts), 0) AS last_publish_ts,
		       COALESCE(MAX(c.fetch_time), 0) AS last_fetch_time
		FROM dynamic_core c
		GROUP BY c.host_mid
		ORDER BY MAX(c.publish_ts) DESC, COUNT(*) DESC
		LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HostStats
	for rows.Next() {
		var h HostStats
		if err := rows.Scan(&h.HostMID, &h.UpName, &h.ItemCount, &h.LastPublishTS, &h.LastFetchTime); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListItems returns the archived items of one owner, newest first, with the
// total row count for pagination.
func ListItems(hostMID string, limit, offset int) (int64, []ItemRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if backendKind() == backendMongoDB {
		return mongoListItems(hostMID, limit, offset)
	}
	db, k, err := sqlDB()
	if err != nil {
		return 0, nil, err
	}

	var total int64
	if err := db.QueryRow(
		rebind(k, `SELECT COUNT(*) FROM dynamic_core WHERE host_mid = ?`),
		hostMID,
	).Scan(&total); err != nil {
		return 0, nil, err
	}
	if total == 0 {
		return 0, nil, nil
	}

	rows, err := db.Query(rebind(k, `
		SELECT c.host_mid, c.id_str, c.type, c.visible, c.publish_ts,
		       c.comment_id_str, c.comment_type, c.rid_str, c.txt,
		       c.author_name, c.bvid, c.title, c.cover, c.description,
		       c.article_title, c.article_covers, c.opus_title,
		       c.opus_summary_text, c.media_locals, c.media_count,
		       c.live_media_locals, c.live_media_count, c.fetch_time,
		       COALESCE(s.like_count, 0), COALESCE(s.comment_count, 0),
		       COALESCE(s.repost_count, 0), COALESCE(s.view_count, 0)
		FROM dynamic_core c
		LEFT JOIN dynamic_stat s ON s.host_mid = c.host_mid AND s.id_str = c.id_str
		WHERE c.host_mid = ?
		ORDER BY c.publish_ts DESC, c.fetch_time DESC
		LIMIT ? OFFSET ?`),
		hostMID, limit, offset,
	)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		r, err := scanItemRow(rows)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, r)
	}
	return total, out, rows.Err()
}

func scanItemRow(rows *sql.Rows) (ItemRow, error) {
	var r ItemRow
	var visible sql.NullInt64
	var (
		commentIDStr, ridStr, txt, authorName, bvid, title, cover, desc       sql.NullString
		articleTitle, articleCovers, opusTitle, opusSummary, media, liveMedia sql.NullString
		itemType                                                              sql.NullString
		publishTS, commentType, mediaCount, liveMediaCount, fetchTime         sql.NullInt64
	)
	if err := rows.Scan(
		&r.HostMID, &r.IDStr, &itemType, &visible, &publishTS,
		&commentIDStr, &commentType, &ridStr, &txt,
		&authorName, &bvid, &title, &cover, &desc,
		&articleTitle, &articleCovers, &opusTitle,
		&opusSummary, &media, &mediaCount,
		&liveMedia, &liveMediaCount, &fetchTime,
		&r.LikeCount, &r.CommentCount, &r.RepostCount, &r.ViewCount,
	); err != nil {
		return r, err
	}
	r.Type = itemType.String
	if visible.Valid {
		v := visible.Int64 != 0
		r.Visible = &v
	}
	r.PublishTS = publishTS.Int64
	r.CommentIDStr = commentIDStr.String
	r.CommentType = commentType.Int64
	r.RidStr = ridStr.String
	r.Text = txt.String
	r.AuthorName = authorName.String
	r.BVID = bvid.String
	r.Title = title.String
	r.Cover = cover.String
	r.Desc = desc.String
	r.ArticleTitle = articleTitle.String
	r.ArticleCovers = articleCovers.String
	r.OpusTitle = opusTitle.String
	r.OpusSummary = opusSummary.String
	r.MediaLocals = media.String
	r.MediaCount = mediaCount.Int64
	r.LiveMediaLocals = liveMedia.String
	r.LiveMediaCount = liveMediaCount.Int64
	r.FetchTime = fetchTime.Int64
	return r, nil
}

// GetItem fetches one archived item by id across all owners.
func GetItem(idStr string) (*ItemRow, error) {
	if backendKind() == backendMongoDB {
		return mongoGetItem(idStr)
	}
	db, k, err := sqlDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(rebind(k, `
		SELECT c.host_mid, c.id_str, c.type, c.visible, c.publish_ts,
		       c.comment_id_str, c.comment_type, c.rid_str, c.txt,
		       c.author_name, c.bvid, c.title, c.cover, c.description,
		       c.article_title, c.article_covers, c.opus_title,
		       c.opus_summary_text, c.media_locals, c.media_count,
		       c.live_media_locals, c.live_media_count, c.fetch_time,
		       COALESCE(s.like_count, 0), COALESCE(s.comment_count, 0),
		       COALESCE(s.repost_count, 0), COALESCE(s.view_count, 0)
		FROM dynamic_core c
		LEFT JOIN dynamic_stat s ON s.host_mid = c.host_mid AND s.id_str = c.id_str
		WHERE c.id_str = ?
		LIMIT 1`),
		idStr,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanItemRow(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// upsertStmt builds an insert that updates updateCols on primary key
// conflict, in the dialect of the backend.
func upsertStmt(k sqlBackendKind, table string, cols, updateCols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = placeholder(k, i+1)
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(ph, ", "))
	b.WriteString(")")

	if k == backendMySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range updateCols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c)
			b.WriteString(" = VALUES(")
			b.WriteString(c)
			b.WriteString(")")
		}
		return b.String()
	}

	b.WriteString(" ON CONFLICT(host_mid, id_str) DO UPDATE SET ")
	for i, c := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = excluded.")
		b.WriteString(c)
	}
	return b.String()
}
