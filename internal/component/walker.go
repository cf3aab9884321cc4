package component

import (
	"context"
	"fmt"
	"time"

	"agridash/internal/logging"
	"agridash/internal/observability"
	"agridash/internal/pageconfig"
	"agridash/internal/query"
)

// Walker drives component resolution: it dispatches each node to its
// processor and expands iterated sections by re-invoking itself once per
// iterator row. Every node resolves to exactly one fragment; errors are
// captured in place and never abort sibling nodes.
type Walker struct {
	processor *Processor
	metrics   *observability.DashboardMetrics
}

// NewWalker creates a walker over the given processor. Metrics may be nil.
func NewWalker(processor *Processor, metrics *observability.DashboardMetrics) *Walker {
	return &Walker{processor: processor, metrics: metrics}
}

// ProcessAll resolves every top-level component in order with an empty
// initial context.
func (w *Walker) ProcessAll(ctx context.Context, components []pageconfig.Component, company Company) []any {
	results := make([]any, 0, len(components))
	for _, c := range components {
		results = append(results, w.Process(ctx, c, company, nil))
	}
	return results
}

// Process resolves one component node into its result fragment.
func (w *Walker) Process(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) any {
	start := time.Now()
	result, errMsg := w.dispatch(ctx, c, company, iterCtx)

	if w.metrics != nil {
		w.metrics.RecordComponent(ctx, c.Type, time.Since(start), errMsg != "")
	}
	if errMsg != "" {
		logging.FromContext(ctx).Warn("component resolved to an error fragment",
			"component_key", c.Key,
			"component_type", c.Type,
			"context", iterCtx,
			"error", errMsg)
	}
	return result
}

// dispatch returns the fragment and the error message it carries, if any.
func (w *Walker) dispatch(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) (any, string) {
	p := w.processor

	if c.Iterated != nil {
		res := w.processIteratedSection(ctx, c, company, iterCtx)
		return res, res.Error
	}

	if !c.HasDataSource && c.Type != pageconfig.TypeMapChart {
		res := ErrorFragment{
			Header: headerFor(c),
			Error:  fmt.Sprintf("Component %q is missing its dataSource.", c.Key),
		}
		return res, res.Error
	}

	switch {
	case c.InfoCard != nil:
		res := p.processInfoCard(ctx, c, company, iterCtx)
		return res, res.Error
	case c.DataGrid != nil:
		res := p.processDataGrid(ctx, c, company, iterCtx)
		return res, res.Error
	case c.KPIGroup != nil:
		res := p.processKPIGroup(ctx, c, company, iterCtx)
		return res, res.Error
	case c.TimeSeries != nil:
		res := p.processTimeSeries(ctx, c, company, iterCtx)
		return res, res.Error
	case c.CategoryChart != nil:
		res := p.processCategoryChart(ctx, c, company, iterCtx)
		return res, res.Error
	case c.MapChart != nil:
		res := p.processMapChart(ctx, c, company, iterCtx)
		return res, res.Error
	case c.Timeline != nil:
		res := p.processTimeline(ctx, c, company, iterCtx)
		return res, res.Error
	default:
		res := ErrorFragment{
			Header: headerFor(c),
			Error:  fmt.Sprintf("Component type %s not implemented.", c.Type),
		}
		return res, res.Error
	}
}

// processIteratedSection fetches the iterator rows and resolves the template
// once per row, with that row as the new context. Iterator rows are
// processed sequentially; a child that fails placeholder resolution becomes
// an isolated error fragment while its siblings proceed normally.
func (w *Walker) processIteratedSection(ctx context.Context, c pageconfig.Component, company Company, parentCtx map[string]any) IteratedSectionResult {
	p := w.processor
	params := c.Iterated
	res := IteratedSectionResult{
		Header:   headerFor(c),
		Layout:   params.IterationConfig.Layout,
		Sections: []Section{},
	}

	if params.IteratorDataSource.Source == "" {
		res.Error = fmt.Sprintf("Component %q is missing its iteratorDataSource.", c.Key)
		return res
	}

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:   params.IteratorDataSource.Source,
		Columns:  params.IteratorDataSource.Columns,
		Filter:   params.IteratorDataSource.Filter,
		ScopeVia: params.IteratorDataSource.ScopeVia,
	}, company.ID, parentCtx)
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

	for i, row := range rows {
		section := Section{
			Title:   sectionTitle(c, params, row, i),
			Content: make([]any, 0, len(params.Template)),
		}
		for _, child := range params.Template {
			resolved, err := pageconfig.ResolveComponent(child, row)
			if err != nil {
				section.Content = append(section.Content, ErrorFragment{
					Header: headerFor(child),
					Error:  err.Error(),
				})
				continue
			}
			section.Content = append(section.Content, w.Process(ctx, resolved, company, row))
		}
		res.Sections = append(res.Sections, section)
	}
	return res
}

// sectionTitle derives a section title from the configured title field,
// falling back to a positional title when the field is absent or empty.
func sectionTitle(c pageconfig.Component, params *pageconfig.IteratedSectionParams, row map[string]any, index int) string {
	if field := params.IterationConfig.TitleField; field != "" {
		if value, ok := row[field]; ok && value != nil {
			return FormatValue(value, "")
		}
	}
	base := c.Title
	if base == "" {
		base = c.Key
	}
	return fmt.Sprintf("%s %d", base, index+1)
}
