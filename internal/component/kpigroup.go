package component

import (
	"context"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processKPIGroup resolves a single target year, fetches that year's row,
// and maps the configured metrics into key/label/value triples.
//
// The last_n_years time context currently resolves the same single latest
// year as the default path; multi-year KPI windows are not supported by the
// page configurations in use.
func (p *Processor) processKPIGroup(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) KPIGroupResult {
	res := KPIGroupResult{Header: headerFor(c), KPIs: []KPI{}}
	params := c.KPIGroup

	if len(params.Metrics) == 0 {
		res.Error = "kpiGroup requires a metrics parameter"
		return res
	}

	yearColumn := params.YearColumn
	if yearColumn == "" {
		yearColumn = p.cfg.Conventions.YearColumn
	}

	// Rewrite a "latest" year filter into the concrete resolved year so the
	// result can carry it. A missing year short-circuits to the empty shape.
	filter := make(map[string]pageconfig.FilterValue, len(params.Filter))
	for column, fv := range params.Filter {
		filter[column] = fv
	}
	if fv, ok := filter[yearColumn]; ok && fv.IsLatest {
		year, found := p.latest.LatestYear(ctx, c.Source, company.ID, yearColumn, iterCtx)
		if !found {
			return res
		}
		filter[yearColumn] = pageconfig.FilterLiteral(year)
		res.Year = year
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:   c.Source,
		Columns:  columnNames(params.Metrics),
		Filter:   filter,
		ScopeVia: params.ScopeVia,
		Limit:    1,
	}, company.ID, iterCtx)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if empty {
		return res
	}

	rows, err := queryRows(ctx, p.exec, q)
	if err != nil {
		res.Error = dbError(err)
		return res
	}
	p.recordRows(ctx, c.Type, len(rows))
	if len(rows) == 0 {
		return res
	}

	row := rows[0]
	for _, def := range params.Metrics {
		res.KPIs = append(res.KPIs, KPI{
			Key:   def.Column,
			Label: def.Label,
			Value: FormatValue(row[def.Column], def.Format),
		})
	}
	return res
}
