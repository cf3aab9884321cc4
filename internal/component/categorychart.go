package component

import (
	"context"
	"fmt"
	"sort"

	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// processCategoryChart builds a horizontal stacked bar chart for a single
// resolved year: rows grouped by a category column, optionally stacked by a
// second column, optionally truncated to the top N categories by total value.
//
// A last_n_years time context still resolves a single latest year; the
// multi-year path was never reachable in the page configurations in use, so
// single-year is the defined behavior here.
func (p *Processor) processCategoryChart(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) CategoryChartResult {
	res := CategoryChartResult{Header: headerFor(c), Categories: []CategoryValue{}}
	params := c.CategoryChart

	if params.CategoryColumn == "" || params.ValueColumn == "" {
		res.Error = fmt.Sprintf("%s requires categoryColumn and valueColumn parameters", c.Type)
		return res
	}

	yearColumn := params.YearColumn
	if yearColumn == "" {
		yearColumn = p.cfg.Conventions.YearColumn
	}

	year, found := p.latest.LatestYear(ctx, c.Source, company.ID, yearColumn, iterCtx)
	if !found {
		return res
	}
	res.Year = year

	filter := make(map[string]pageconfig.FilterValue, len(params.Filter)+1)
	for column, fv := range params.Filter {
		filter[column] = fv
	}
	filter[yearColumn] = pageconfig.FilterLiteral(year)

	columns := []string{params.CategoryColumn, params.ValueColumn}
	if params.StackByColumn != "" {
		columns = append(columns, params.StackByColumn)
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:   c.Source,
		Columns:  columns,
		Filter:   filter,
		ScopeVia: params.ScopeVia,
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

	res.Categories = buildCategories(rows, params)
	return res
}

func buildCategories(rows []map[string]any, params *pageconfig.CategoryChartParams) []CategoryValue {
	totals := make(map[string]float64)
	stacks := make(map[string][]CategoryStack)
	order := []string{}

	for _, row := range rows {
		category := fmt.Sprintf("%v", row[params.CategoryColumn])
		value, _ := toFloat(row[params.ValueColumn])

		if _, seen := totals[category]; !seen {
			order = append(order, category)
		}
		totals[category] += value

		if params.StackByColumn != "" {
			stacks[category] = append(stacks[category], CategoryStack{
				Name:  fmt.Sprintf("%v", row[params.StackByColumn]),
				Value: value,
			})
		}
	}

	// Descending by total value is the default tie-break for top-N.
	sort.SliceStable(order, func(i, j int) bool {
		return totals[order[i]] > totals[order[j]]
	})
	if params.TopN > 0 && len(order) > params.TopN {
		order = order[:params.TopN]
	}

	categories := make([]CategoryValue, 0, len(order))
	for _, category := range order {
		categories = append(categories, CategoryValue{
			Category: category,
			Value:    totals[category],
			Stacks:   stacks[category],
		})
	}
	return categories
}
