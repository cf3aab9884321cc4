package component

import (
	"context"

	"agridash/internal/catalog"
	"agridash/internal/dbexec"
	"agridash/internal/observability"
	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// Company is the resolved entity-of-interest every query is scoped around.
type Company struct {
	ID           string
	CVR          string
	Municipality string
}

// Config holds the processor's schema conventions and defaults.
type Config struct {
	Conventions catalog.Conventions
	// CompanyTable is queried by primary key and is the default address
	// source for map charts.
	CompanyTable string
	// CompanyPKColumn is the company table's primary key column.
	CompanyPKColumn string
	// AddressGeometryColumn is the default geometry column holding the
	// company's address point.
	AddressGeometryColumn string
	// DefaultGridLimit caps grid and timeline row counts when a component
	// declares no explicit limit.
	DefaultGridLimit int
}

// Processor executes the per-type component resolution. One instance is
// shared across requests; it carries no per-request state.
type Processor struct {
	exec    dbexec.QueryExecutor
	builder *query.Builder
	latest  *catalog.LatestYearResolver
	columns *catalog.ColumnCache
	metrics *observability.DashboardMetrics
	cfg     Config
}

// NewProcessor wires a processor over the shared executor and catalog state.
// Metrics may be nil.
func NewProcessor(exec dbexec.QueryExecutor, columns *catalog.ColumnCache, latest *catalog.LatestYearResolver, metrics *observability.DashboardMetrics, cfg Config) *Processor {
	if cfg.AddressGeometryColumn == "" {
		cfg.AddressGeometryColumn = "geom"
	}
	if cfg.DefaultGridLimit <= 0 {
		cfg.DefaultGridLimit = 500
	}
	return &Processor{
		exec:    exec,
		builder: query.NewBuilder(columns, latest, cfg.Conventions, cfg.CompanyTable, cfg.CompanyPKColumn),
		latest:  latest,
		columns: columns,
		metrics: metrics,
		cfg:     cfg,
	}
}

func headerFor(c pageconfig.Component) Header {
	return Header{Key: c.Key, Type: c.Type, Title: c.Title}
}

// dbError renders a query failure in the uniform component error format.
func dbError(err error) string {
	return "Database error: " + err.Error()
}

func columnNames(defs []pageconfig.ColumnDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Column
	}
	return names
}

func (p *Processor) recordRows(ctx context.Context, componentType string, n int) {
	if p.metrics != nil {
		p.metrics.RecordComponentRows(ctx, componentType, int64(n))
	}
}
