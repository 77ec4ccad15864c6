package store

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"dynamics-archiver-go/internal/config"
)

var (
	mysqlOnce sync.Once
	mysqlInst *sql.DB
	mysqlErr  error
)

func mysqlDB() (*sql.DB, error) {
	if backendKind() != backendMySQL {
		return nil, errors.New("mysql backend disabled")
	}
	mysqlOnce.Do(func() {
		dsn := strings.TrimSpace(config.AppConfig.MySQLDSN)
		if dsn == "" {
			mysqlErr = errors.New("MYSQL_DSN is empty")
			return
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			mysqlErr = err
			return
		}
		setDBPoolDefaults(db, 8)
		db.SetConnMaxIdleTime(2 * time.Minute)

		for _, stmt := range mysqlSchema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				mysqlErr = err
				return
			}
		}
		mysqlInst = db
	})
	return mysqlInst, mysqlErr
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS dynamic_core (
		host_mid VARCHAR(32) NOT NULL,
		id_str VARCHAR(64) NOT NULL,
		type VARCHAR(64),
		visible TINYINT,
		publish_ts BIGINT,
		comment_id_str VARCHAR(64),
		comment_type BIGINT,
		rid_str VARCHAR(64),
		txt MEDIUMTEXT,
		author_name VARCHAR(255),
		bvid VARCHAR(32),
		title TEXT,
		cover TEXT,
		description MEDIUMTEXT,
		article_title TEXT,
		article_covers MEDIUMTEXT,
		opus_title TEXT,
		opus_summary_text MEDIUMTEXT,
		media_locals MEDIUMTEXT,
		media_count BIGINT,
		live_media_locals MEDIUMTEXT,
		live_media_count BIGINT,
		fetch_time BIGINT NOT NULL,
		PRIMARY KEY (host_mid, id_str),
		KEY idx_dynamic_core_publish_ts (publish_ts)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	`CREATE TABLE IF NOT EXISTS dynamic_author (
		host_mid VARCHAR(32) NOT NULL,
		id_str VARCHAR(64) NOT NULL,
		author_mid VARCHAR(32),
		author_name VARCHAR(255),
		face TEXT,
		PRIMARY KEY (host_mid, id_str)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	`CREATE TABLE IF NOT EXISTS dynamic_stat (
		host_mid VARCHAR(32) NOT NULL,
		id_str VARCHAR(64) NOT NULL,
		like_count BIGINT,
		comment_count BIGINT,
		repost_count BIGINT,
		view_count BIGINT,
		PRIMARY KEY (host_mid, id_str)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
}
