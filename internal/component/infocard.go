package component

import (
	"context"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processInfoCard maps at most one row into a flat label/value list. Zero
// matching rows yield an empty item list with no error.
func (p *Processor) processInfoCard(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) InfoCardResult {
	res := InfoCardResult{Header: headerFor(c), Items: []LabelValue{}}
	params := c.InfoCard

	if len(params.Columns) == 0 {
		res.Error = "infoCard requires a columns parameter"
		return res
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:   c.Source,
		Columns:  columnNames(params.Columns),
		Filter:   params.Filter,
		ScopeVia: params.ScopeVia,
		OrderBy:  params.OrderBy,
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
	for _, def := range params.Columns {
		res.Items = append(res.Items, LabelValue{
			Label: def.Label,
			Value: FormatValue(row[def.Column], def.Format),
		})
	}
	return res
}
