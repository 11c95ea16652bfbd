package db

import (
	"context"
	"fmt"
	"log"
	"time"
)

// openFuncs maps driver name to the adapter constructor. Kept as a variable
// so tests can stub a driver without a live server.
var openFuncs = map[string]func(ctx context.Context, dsn string) (DB, error){
	"postgres": NewPgDB,
	"sqlite":   NewSQLiteDB,
	"mssql":    NewMSSQLDB,
}

// Connect opens a connection for the given driver, retrying transient
// failures a bounded number of times with a fixed delay between attempts.
// After maxRetries failed attempts it gives up with the last error.
func Connect(ctx context.Context, driver, dsn string, maxRetries int, retryDelay time.Duration) (DB, error) {
	open, ok := openFuncs[driver]
	if !ok {
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := open(ctx, dsn)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Printf("db: connect %s failed (attempt %d/%d): %v", driver, attempt, maxRetries, err)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("db: connect %s: retries exhausted: %w", driver, lastErr)
}
