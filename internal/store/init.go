package store

import (
	"context"
	"time"
)

// Init opens the configured backend and verifies it is reachable.
func Init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	switch backendKind() {
	case backendMongoDB:
		_, err := mongoClient()
		return err
	default:
		db, _, err := sqlDB()
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	}
}
