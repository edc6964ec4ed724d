package session

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a driver by name. "auto" uses postgres when a database URL
// is configured, sqlite when a path is, and memory otherwise.
func NewStore(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	switch driver = ResolveDriver(driver, databaseURL, sqlitePath); driver {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	case "sqlite":
		return NewSQLiteStore(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unknown session store %q", driver)
	}
}

// ResolveDriver turns "auto" (or empty) into a concrete driver name.
func ResolveDriver(driver, databaseURL, sqlitePath string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver != "" && driver != "auto" {
		return driver
	}
	switch {
	case strings.TrimSpace(databaseURL) != "":
		return "postgres"
	case strings.TrimSpace(sqlitePath) != "":
		return "sqlite"
	default:
		return "memory"
	}
}
