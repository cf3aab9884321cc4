package component

import (
	"context"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processDataGrid maps every matching row through the column definitions
// into a row-of-cells object. The filterable/collapsible variants only set
// capability flags; the query is identical.
func (p *Processor) processDataGrid(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) DataGridResult {
	params := c.DataGrid
	res := DataGridResult{
		Header:      headerFor(c),
		Columns:     []GridColumn{},
		Rows:        []map[string]string{},
		Filterable:  params.Filterable,
		Collapsible: params.Collapsible,
	}

	if len(params.Columns) == 0 {
		res.Error = "dataGrid requires a columns parameter"
		return res
	}
	for _, def := range params.Columns {
		res.Columns = append(res.Columns, GridColumn{Key: def.Column, Label: def.Label})
	}

	limit := params.Limit
	if limit <= 0 {
		limit = p.cfg.DefaultGridLimit
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:         c.Source,
		Columns:        columnNames(params.Columns),
		Filter:         params.Filter,
		ScopeVia:       params.ScopeVia,
		OrderBy:        params.OrderBy,
		OrderDirection: params.OrderDirection,
		Limit:          limit,
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

	for _, row := range rows {
		cells := make(map[string]string, len(params.Columns))
		for _, def := range params.Columns {
			cells[def.Column] = FormatValue(row[def.Column], def.Format)
		}
		res.Rows = append(res.Rows, cells)
	}
	return res
}
