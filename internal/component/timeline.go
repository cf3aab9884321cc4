package component

import (
	"context"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processTimeline maps rows into date/description events, newest first
// unless the configuration orders explicitly. The query scopes by the site
// column when the iteration context carries one and the source supports it,
// falling back to the company scope otherwise.
func (p *Processor) processTimeline(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) TimelineResult {
	res := TimelineResult{Header: headerFor(c), Events: []TimelineEvent{}}
	params := c.Timeline

	if params.DateColumn == "" || params.DescriptionColumn == "" {
		res.Error = "timeline requires dateColumn and descriptionColumn parameters"
		return res
	}

	columns := []string{params.DateColumn, params.DescriptionColumn}
	columns = append(columns, params.GroupByColumns...)

	orderBy := params.OrderBy
	direction := params.OrderDirection
	if orderBy == "" {
		orderBy = params.DateColumn
		direction = "desc"
	}

	limit := params.Limit
	if limit <= 0 {
		limit = p.cfg.DefaultGridLimit
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:          c.Source,
		Columns:         columns,
		Filter:          params.Filter,
		ScopeVia:        params.ScopeVia,
		OrderBy:         orderBy,
		OrderDirection:  direction,
		Limit:           limit,
		PreferSiteScope: true,
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
		event := TimelineEvent{
			"date":        FormatValue(row[params.DateColumn], FormatDate),
			"description": FormatValue(row[params.DescriptionColumn], ""),
		}
		for _, column := range params.GroupByColumns {
			event[column] = row[column]
		}
		res.Events = append(res.Events, event)
	}
	return res
}
