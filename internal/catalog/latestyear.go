package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"agridash/internal/dbexec"
	"agridash/internal/logging"
	"agridash/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Conventions names the schema conventions the resolver relies on when
// scoping queries to a company or one of its production sites.
type Conventions struct {
	// CompanyIDColumn is the foreign key column sources use to reference a company.
	CompanyIDColumn string
	// SiteScopeColumn is the per-site column (CHR number) preferred over the
	// company scope when the iteration context carries a value for it.
	SiteScopeColumn string
	// YearColumn is the default column for latest-year resolution.
	YearColumn string
}

// LatestYearResolver resolves the "latest" filter sentinel to the most recent
// year present in a source, using the narrowest scope the source supports.
type LatestYearResolver struct {
	exec        dbexec.QueryExecutor
	columns     *ColumnCache
	conventions Conventions
}

// NewLatestYearResolver builds a resolver over the given executor and column cache.
func NewLatestYearResolver(exec dbexec.QueryExecutor, columns *ColumnCache, conventions Conventions) *LatestYearResolver {
	return &LatestYearResolver{
		exec:        exec,
		columns:     columns,
		conventions: conventions,
	}
}

// LatestYear returns the most recent value of yearColumn in table.
//
// Scope selection, narrowest first: if iterCtx carries the site-scope key and
// the table has that column, scope by site; else if the table has the
// company-id column, scope by companyID; else query unscoped (logged as
// degraded). Returns (0, false) on any query error or empty result.
func (r *LatestYearResolver) LatestYear(ctx context.Context, table, companyID, yearColumn string, iterCtx map[string]any) (int, bool) {
	if yearColumn == "" {
		yearColumn = r.conventions.YearColumn
	}

	builder := sq.Select(sqlutil.QuoteIdentifier(yearColumn)).
		From(sqlutil.QuoteIdentifier(table)).
		Where(fmt.Sprintf("%s IS NOT NULL", sqlutil.QuoteIdentifier(yearColumn))).
		OrderBy(sqlutil.QuoteIdentifier(yearColumn) + " DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	siteValue, hasSite := iterCtx[r.conventions.SiteScopeColumn]
	switch {
	case hasSite && siteValue != nil && r.columns.HasColumn(ctx, table, r.conventions.SiteScopeColumn):
		builder = builder.Where(sq.Eq{sqlutil.QuoteIdentifier(r.conventions.SiteScopeColumn): siteValue})
	case r.columns.HasColumn(ctx, table, r.conventions.CompanyIDColumn):
		builder = builder.Where(sq.Eq{sqlutil.QuoteIdentifier(r.conventions.CompanyIDColumn): companyID})
	default:
		logging.FromContext(ctx).Warn("latest-year resolution running unscoped",
			"table", table, "year_column", yearColumn)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		logging.FromContext(ctx).Error("failed to build latest-year query",
			"table", table, "error", err.Error())
		return 0, false
	}

	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		logging.FromContext(ctx).Warn("latest-year query failed",
			"table", table, "error", err.Error())
		return 0, false
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false
	}

	var year sql.NullInt64
	if err := rows.Scan(&year); err != nil || !year.Valid {
		return 0, false
	}
	return int(year.Int64), true
}
