package memory

import (
	"context"
	"fmt"
	"strings"
)

// NewStore creates the interaction log for the same driver the session store
// uses. The in-memory store keeps maxPerIdentity turns per identity.
func NewStore(ctx context.Context, driver, databaseURL, sqlitePath string, maxPerIdentity int) (Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" || driver == "auto" {
		switch {
		case strings.TrimSpace(databaseURL) != "":
			driver = "postgres"
		case strings.TrimSpace(sqlitePath) != "":
			driver = "sqlite"
		default:
			driver = "memory"
		}
	}
	switch driver {
	case "memory":
		return NewInMemoryStore(maxPerIdentity), nil
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	case "sqlite":
		return NewSQLiteStore(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unknown memory store %q", driver)
	}
}
