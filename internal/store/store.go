package store

import (
	"context"
	"fmt"

	"github.com/dshills/auditlens/internal/config"
	"github.com/dshills/auditlens/internal/review"
)

// Store is a finding store that can also enumerate findings and be closed.
type Store interface {
	review.FindingStore
	// ListIDs returns finding IDs with the given review status ("" for all),
	// ordered by ID. limit <= 0 means no limit.
	ListIDs(ctx context.Context, status review.Status, limit int) ([]string, error)
	Close(ctx context.Context) error
}

// Open connects the store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(cfg.DSN)
	case "mongo", "mongodb":
		return ConnectMongo(ctx, cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
