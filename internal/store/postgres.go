package store

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dynamics-archiver-go/internal/config"
)

var (
	postgresOnce sync.Once
	postgresInst *sql.DB
	postgresErr  error
)

func postgresDB() (*sql.DB, error) {
	if backendKind() != backendPostgres {
		return nil, errors.New("postgres backend disabled")
	}
	postgresOnce.Do(func() {
		dsn := strings.TrimSpace(config.AppConfig.PostgresDSN)
		if dsn == "" {
			postgresErr = errors.New("POSTGRES_DSN is empty")
			return
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			postgresErr = err
			return
		}
		setDBPoolDefaults(db, 8)
		db.SetConnMaxIdleTime(2 * time.Minute)

		for _, stmt := range postgresSchema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				postgresErr = err
				return
			}
		}
		postgresInst = db
	})
	return postgresInst, postgresErr
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS dynamic_core (
		host_mid TEXT NOT NULL,
		id_str TEXT NOT NULL,
		type TEXT,
		visible SMALLINT,
		publish_ts BIGINT,
		comment_id_str TEXT,
		comment_type BIGINT,
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
		media_count BIGINT,
		live_media_locals TEXT,
		live_media_count BIGINT,
		fetch_time BIGINT NOT NULL,
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
		like_count BIGINT,
		comment_count BIGINT,
		repost_count BIGINT,
		view_count BIGINT,
		PRIMARY KEY (host_mid, id_str)
	);`,
}
