package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"dynamics-archiver-go/internal/config"
)

var (
	sqliteOnce sync.Once
	sqliteInst *sql.DB
	sqliteErr  error
)

func sqlitePath() string {
	p := strings.TrimSpace(config.AppConfig.SQLitePath)
	if p == "" {
		p = "data/bilibili_dynamic.db"
	}
	return p
}

func sqliteDB() (*sql.DB, error) {
	if backendKind() != backendSQLite {
		return nil, errors.New("sqlite backend disabled")
	}
	sqliteOnce.Do(func() {
		p := sqlitePath()
		if dir := filepath.Dir(p); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0755)
		}
		db, err := sql.Open("sqlite", p)
		if err != nil {
			sqliteErr = err
			return
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)

		if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			sqliteErr = err
			return
		}
		if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
			_ = db.Close()
			sqliteErr = err
			return
		}

		for _, stmt := range sqliteSchema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				sqliteErr = err
				return
			}
		}
		sqliteInst = db
	})
	return sqliteInst, sqliteErr
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS dynamic_core (
		host_mid TEXT NOT NULL,
		id_str TEXT NOT NULL,
		type TEXT,
		visible INTEGER,
		publish_ts INTEGER,
		comment_id_str TEXT,
		comment_type INTEGER,
		rid_str TEXT,
		txt TEXT,
		author_name TEXT,
		bvid TEXT,
		title TEXT,
		cover TEXT,
		description TEXT,
		article_title TEXT,
		article_covers TEXT,
		opus_title TEXT,
		opus_summary_text TEXT,
		media_locals TEXT,
		media_count INTEGER,
		live_media_locals TEXT,
		live_media_count INTEGER,
		fetch_time INTEGER NOT NULL,
		PRIMARY KEY (host_mid, id_str)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_dynamic_core_publish_ts ON dynamic_core(publish_ts);`,
	`CREATE TABLE IF NOT EXISTS dynamic_author (
		host_mid TEXT NOT NULL,
		id_str TEXT NOT NULL,
		author_mid TEXT,
		author_name TEXT,
		face TEXT,
		PRIMARY KEY (host_mid, id_str)
	);`,
	`CREATE TABLE IF NOT EXISTS dynamic_stat (
		host_mid TEXT NOT NULL,
		id_str TEXT NOT NULL,
		like_count INTEGER,
		comment_count INTEGER,
		repost_count INTEGER,
		view_count INTEGER,
		PRIMARY KEY (host_mid, id_str)
	);`,
}
