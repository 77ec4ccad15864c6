// Package store persists archived feed items. Four backends are supported,
// selected by configuration: SQLite (the default), MySQL, PostgreSQL, and
// MongoDB. Each backend keeps the same three tables: dynamic_core for the
// flattened item, dynamic_author and dynamic_stat keyed the same way.
//
// The media columns of dynamic_core (media_locals, live_media_locals and
// their counts) follow a write-once rule: the item upsert never touches them,
// and AttachMediaLocals only fills them while they are empty. Re-crawling an
// item therefore refreshes its text and counters without clobbering paths of
// files already on disk.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"dynamics-archiver-go/internal/config"
)

type sqlBackendKind string

const (
	backendSQLite   sqlBackendKind = "sqlite"
	backendMySQL    sqlBackendKind = "mysql"
	backendPostgres sqlBackendKind = "postgres"
	backendMongoDB  sqlBackendKind = "mongodb"
)

func backendKind() sqlBackendKind {
	v := strings.ToLower(strings.TrimSpace(config.AppConfig.StoreBackend))
	switch v {
	case "mysql":
		return backendMySQL
	case "postgres", "postgresql":
		return backendPostgres
	case "mongodb", "mongo":
		return backendMongoDB
	default:
		return backendSQLite
	}
}

func placeholder(k sqlBackendKind, idx int) string {
	if k == backendPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// rebind rewrites ? placeholders to $N for postgres.
func rebind(k sqlBackendKind, query string) string {
	if k != backendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func setDBPoolDefaults(db *sql.DB, maxOpen int) {
	if db == nil {
		return
	}
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(0)
}
