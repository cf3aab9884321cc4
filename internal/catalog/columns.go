// Package catalog answers schema questions about the backing database.
// The resolver is configuration driven, so whether a table carries a given
// scoping column is only known at runtime; this package memoizes probe
// queries so each (table, column) pair costs at most one round trip.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agridash/internal/dbexec"
	"agridash/internal/logging"
	"agridash/internal/observability"
	"agridash/internal/sqlutil"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

// ColumnCache memoizes column existence per (table, column) pair for the
// lifetime of the process. Schema changes require a restart. Concurrent
// probes for the same pair may race; the duplicate probe is harmless and the
// last write wins with an identical value.
type ColumnCache struct {
	exec    dbexec.QueryExecutor
	metrics *observability.DashboardMetrics

	mu    sync.RWMutex
	known map[string]bool
}

// NewColumnCache creates an empty cache backed by the given executor.
// Metrics may be nil.
func NewColumnCache(exec dbexec.QueryExecutor, metrics *observability.DashboardMetrics) *ColumnCache {
	return &ColumnCache{
		exec:    exec,
		metrics: metrics,
		known:   make(map[string]bool),
	}
}

// HasColumn reports whether the named column exists on the given table or
// view. The first call per pair issues a zero-row probe query. A
// column-or-relation-undefined error means false; any other error fails open
// as true, preferring a failed downstream query over silently dropping a
// filter.
func (c *ColumnCache) HasColumn(ctx context.Context, table, column string) bool {
	key := table + "." + column

	c.mu.RLock()
	exists, ok := c.known[key]
	c.mu.RUnlock()
	if ok {
		if c.metrics != nil {
			c.metrics.RecordColumnCacheHit(ctx, table)
		}
		return exists
	}

	if c.metrics != nil {
		c.metrics.RecordColumnCacheMiss(ctx, table)
	}

	exists = c.probe(ctx, table, column)

	c.mu.Lock()
	c.known[key] = exists
	c.mu.Unlock()

	return exists
}

func (c *ColumnCache) probe(ctx context.Context, table, column string) bool {
	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 0",
		sqlutil.QuoteIdentifier(column), sqlutil.QuoteIdentifier(table))

	rows, err := c.exec.QueryContext(ctx, query)
	if err != nil {
		if isUndefinedError(err) {
			return false
		}
		logging.FromContext(ctx).Warn("column probe failed with unclassified error, assuming column exists",
			"table", table, "column", column, "error", err.Error())
		return true
	}
	defer rows.Close()

	// Drain so the connection returns to the pool cleanly.
	for rows.Next() {
	}
	return true
}

// isUndefinedError reports whether err is PostgreSQL's undefined-column or
// undefined-table error.
func isUndefinedError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UndefinedColumn || pgErr.Code == pgerrcode.UndefinedTable
	}
	return false
}
