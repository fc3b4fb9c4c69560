package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/inkwell/session"
)

// SessionOptions selects and configures a workflow session backend.
type SessionOptions struct {
	// Backend is one of sqlite, postgres, mysql, redis, memory.
	Backend string
	// DSN is a file path for sqlite, a connection string for postgres/mysql,
	// or a redis:// URL for redis.
	DSN   string
	Table string
	TTL   time.Duration
}

// OpenSessionStore opens the configured backend.
func OpenSessionStore(ctx context.Context, opts SessionOptions) (session.Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "memory":
		return NewMemorySessionStore(), nil
	case "redis":
		return OpenRedisSessionStore(ctx, opts.DSN, opts.TTL)
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
		if opts.DSN == "" {
			return nil, fmt.Errorf("%s session backend requires a DSN", opts.Backend)
		}
		return OpenSQLSessionStore(opts.Backend, opts.DSN, opts.Table)
	default:
		return nil, fmt.Errorf("unknown session backend: %q", opts.Backend)
	}
}
