package component

import (
	"context"
	"fmt"
	"sort"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processTimeSeries builds the bar/line/combo chart family. Two shapes are
// supported: N independent metric columns sharing one time axis, or a single
// value column fanned out into one series per distinct category value.
// Sources without a direct company reference declare a scopeVia indirect
// join instead of relying on source-name special cases.
func (p *Processor) processTimeSeries(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) ChartResult {
	res := ChartResult{Header: headerFor(c), Series: []ChartSeries{}}
	params := c.TimeSeries

	if params.TimeColumn == "" {
		res.Error = fmt.Sprintf("%s requires a timeColumn parameter", c.Type)
		return res
	}

	grouped := params.CategoryColumn != "" && params.ValueColumn != ""
	if !grouped && len(params.Metrics) == 0 {
		res.Error = fmt.Sprintf("%s requires either metrics or valueColumn+categoryColumn", c.Type)
		return res
	}

	columns := []string{params.TimeColumn}
	if grouped {
		columns = append(columns, params.CategoryColumn, params.ValueColumn)
	} else {
		for _, m := range params.Metrics {
			columns = append(columns, m.Column)
		}
	}

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = params.TimeColumn
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:         c.Source,
		Columns:        columns,
		Filter:         params.Filter,
		ScopeVia:       params.ScopeVia,
		OrderBy:        orderBy,
		OrderDirection: params.OrderDirection,
		Limit:          params.Limit,
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

	if grouped {
		res.Series = groupedSeries(rows, params)
	} else {
		res.Series = metricSeries(rows, params)
	}
	return res
}

// metricSeries produces one series per configured metric column.
func metricSeries(rows []map[string]any, params *pageconfig.TimeSeriesParams) []ChartSeries {
	series := make([]ChartSeries, len(params.Metrics))
	for i, m := range params.Metrics {
		name := m.Label
		if name == "" {
			name = m.Column
		}
		points := make([]ChartPoint, 0, len(rows))
		for _, row := range rows {
			points = append(points, ChartPoint{X: row[params.TimeColumn], Y: row[m.Column]})
		}
		series[i] = ChartSeries{Name: name, Data: points}
	}
	return series
}

// groupedSeries fans rows out into one series per distinct category value,
// ordered by category name for deterministic output.
func groupedSeries(rows []map[string]any, params *pageconfig.TimeSeriesParams) []ChartSeries {
	byCategory := make(map[string][]ChartPoint)
	for _, row := range rows {
		category := fmt.Sprintf("%v", row[params.CategoryColumn])
		byCategory[category] = append(byCategory[category], ChartPoint{
			X: row[params.TimeColumn],
			Y: row[params.ValueColumn],
		})
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]ChartSeries, 0, len(names))
	for _, name := range names {
		series = append(series, ChartSeries{Name: name, Data: byCategory[name]})
	}
	return series
}
