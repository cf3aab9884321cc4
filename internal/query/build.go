// Package query turns a component's declarative data source parameters into
// a parameterized SQL statement scoped to the current company.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"agridash/internal/catalog"
	"agridash/internal/logging"
	"agridash/internal/pageconfig"
	"agridash/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// SQLQuery is a built statement with its positional arguments.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Spec describes one query to build. SelectExprs entries are used verbatim
// (already quoted or computed expressions); Columns entries are bare column
// names quoted by the builder. Exactly one of them is normally set.
type Spec struct {
	Source      string
	Columns     []string
	SelectExprs []string

	Filter   map[string]pageconfig.FilterValue
	ScopeVia *pageconfig.ScopeVia

	OrderBy        string
	OrderDirection string
	Limit          int

	// PreferSiteScope makes the builder scope by the site column when the
	// iteration context carries it and the source has that column, instead
	// of the company scope. Used by timelines and latest-year resolution.
	PreferSiteScope bool
}

// Builder builds scoped queries using the schema conventions and the column
// cache to decide which scoping column a source supports.
type Builder struct {
	columns     *catalog.ColumnCache
	latest      *catalog.LatestYearResolver
	conventions catalog.Conventions

	// CompanyTable's rows are scoped by primary key rather than by the
	// foreign company-id column.
	companyTable    string
	companyPKColumn string
}

// NewBuilder constructs a Builder.
func NewBuilder(columns *catalog.ColumnCache, latest *catalog.LatestYearResolver, conventions catalog.Conventions, companyTable, companyPKColumn string) *Builder {
	return &Builder{
		columns:         columns,
		latest:          latest,
		conventions:     conventions,
		companyTable:    companyTable,
		companyPKColumn: companyPKColumn,
	}
}

// Build assembles the query for spec.
//
// The second return value reports a short-circuit: a "latest" filter that
// resolved to no year at all. The caller must render the component's empty
// shape without running any query.
func (b *Builder) Build(ctx context.Context, spec Spec, companyID string, iterCtx map[string]any) (SQLQuery, bool, error) {
	if spec.Source == "" {
		return SQLQuery{}, false, fmt.Errorf("data source has no source table")
	}

	selects := spec.SelectExprs
	if len(selects) == 0 {
		for _, col := range spec.Columns {
			selects = append(selects, sqlutil.QuoteIdentifier(col))
		}
	}
	if len(selects) == 0 {
		selects = []string{"*"}
	}

	builder := sq.Select(selects...).
		From(sqlutil.QuoteIdentifier(spec.Source)).
		PlaceholderFormat(sq.Dollar)

	builder = b.applyScope(ctx, builder, spec, companyID, iterCtx)

	var empty bool
	builder, empty = b.applyFilters(ctx, builder, spec, companyID, iterCtx)
	if empty {
		return SQLQuery{}, true, nil
	}

	if spec.OrderBy != "" {
		builder = builder.OrderBy(sqlutil.QuoteIdentifier(spec.OrderBy) + " " + orderDirection(spec.OrderDirection))
	}
	if spec.Limit > 0 {
		builder = builder.Limit(uint64(spec.Limit))
	}

	sqlText, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, false, fmt.Errorf("failed to build query for %q: %w", spec.Source, err)
	}
	return SQLQuery{SQL: sqlText, Args: args}, false, nil
}

// applyScope narrows the query to the current company (or site). Scope
// selection, in order: the company table itself is scoped by primary key; an
// explicit scopeVia routes through an intermediate table; a site-scope
// column is used when preferred and available; the company-id column is the
// common case; a source with none of these runs unscoped, relying on the
// component's declared filters.
func (b *Builder) applyScope(ctx context.Context, builder sq.SelectBuilder, spec Spec, companyID string, iterCtx map[string]any) sq.SelectBuilder {
	if spec.Source == b.companyTable {
		return builder.Where(sq.Eq{sqlutil.QuoteIdentifier(b.companyPKColumn): companyID})
	}

	if spec.ScopeVia != nil {
		sub := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = ?)",
			sqlutil.QuoteIdentifier(spec.ScopeVia.RemoteColumn),
			sqlutil.QuoteIdentifier(spec.ScopeVia.LocalColumn),
			sqlutil.QuoteIdentifier(spec.ScopeVia.Source),
			sqlutil.QuoteIdentifier(b.conventions.CompanyIDColumn))
		return builder.Where(sq.Expr(sub, companyID))
	}

	if spec.PreferSiteScope {
		if siteValue, ok := iterCtx[b.conventions.SiteScopeColumn]; ok && siteValue != nil &&
			b.columns.HasColumn(ctx, spec.Source, b.conventions.SiteScopeColumn) {
			return builder.Where(sq.Eq{sqlutil.QuoteIdentifier(b.conventions.SiteScopeColumn): siteValue})
		}
	}

	if b.columns.HasColumn(ctx, spec.Source, b.conventions.CompanyIDColumn) {
		return builder.Where(sq.Eq{sqlutil.QuoteIdentifier(b.conventions.CompanyIDColumn): companyID})
	}

	logging.FromContext(ctx).Debug("source has no company scope column, relying on declared filters",
		"source", spec.Source)
	return builder
}

// applyFilters appends the component's declared filters in column order. The
// bool return short-circuits when a "latest" sentinel resolves to nothing.
func (b *Builder) applyFilters(ctx context.Context, builder sq.SelectBuilder, spec Spec, companyID string, iterCtx map[string]any) (sq.SelectBuilder, bool) {
	if len(spec.Filter) == 0 {
		return builder, false
	}

	// Deterministic order: identical inputs must produce identical SQL.
	columns := make([]string, 0, len(spec.Filter))
	for column := range spec.Filter {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		fv := spec.Filter[column]
		if fv.IsLatest {
			year, ok := b.latest.LatestYear(ctx, spec.Source, companyID, column, iterCtx)
			if !ok {
				return builder, true
			}
			builder = builder.Where(sq.Eq{sqlutil.QuoteIdentifier(column): year})
			continue
		}
		builder = builder.Where(sq.Eq{sqlutil.QuoteIdentifier(column): fv.Value})
	}
	return builder, false
}

func orderDirection(direction string) string {
	if strings.EqualFold(direction, "desc") {
		return "DESC"
	}
	return "ASC"
}
