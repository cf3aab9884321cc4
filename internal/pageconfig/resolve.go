package pageconfig

import (
	"fmt"
	"regexp"
)

// placeholderPattern matches {iteratorContext.<key>} occurrences inside
// string values. Keys are captured verbatim; no characters in the key are
// treated as pattern syntax.
var placeholderPattern = regexp.MustCompile(`\{iteratorContext\.([^{}]+)\}`)

// UnresolvedKeyError reports a placeholder referencing a key that is absent
// or nil in the current iteration context. Resolution is total-or-nothing:
// the first offending leaf fails the whole subtree.
type UnresolvedKeyError struct {
	Key string
}

func (e *UnresolvedKeyError) Error() string {
	return fmt.Sprintf("iterator context key %q could not be resolved", e.Key)
}

// ResolveComponent returns a deep copy of c with every
// {iteratorContext.<key>} placeholder in string-typed leaf fields replaced by
// the string form of iterCtx[key]. Substitution operates on the parsed tree,
// not on a serialized form, so context values containing structurally
// significant characters are safe.
func ResolveComponent(c Component, iterCtx map[string]any) (Component, error) {
	r := &resolver{ctx: iterCtx}
	out := r.component(c)
	if r.err != nil {
		return Component{}, r.err
	}
	return out, nil
}

// resolver carries the context and the first substitution error through the
// clone. Once err is set the remaining fields are copied without inspection.
// With passthrough set it degrades to a plain deep copy; used for nested
// iteration templates whose placeholders belong to the inner iterator.
type resolver struct {
	ctx         map[string]any
	err         error
	passthrough bool
}

func (r *resolver) str(s string) string {
	if r.err != nil || r.passthrough {
		return s
	}
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	out := make([]byte, 0, len(s))
	last := 0
	for _, m := range matches {
		key := s[m[2]:m[3]]
		value, ok := r.ctx[key]
		if !ok || value == nil {
			r.err = &UnresolvedKeyError{Key: key}
			return s
		}
		out = append(out, s[last:m[0]]...)
		out = append(out, fmt.Sprintf("%v", value)...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out)
}

func (r *resolver) value(v any) any {
	switch typed := v.(type) {
	case string:
		return r.str(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = r.value(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = r.value(item)
		}
		return out
	default:
		return v
	}
}

func (r *resolver) filter(f map[string]FilterValue) map[string]FilterValue {
	if f == nil {
		return nil
	}
	out := make(map[string]FilterValue, len(f))
	for column, fv := range f {
		out[column] = FilterValue{
			IsLatest: fv.IsLatest,
			Value:    r.value(fv.Value),
		}
	}
	return out
}

func (r *resolver) scopeVia(s *ScopeVia) *ScopeVia {
	if s == nil {
		return nil
	}
	return &ScopeVia{
		Source:       r.str(s.Source),
		LocalColumn:  r.str(s.LocalColumn),
		RemoteColumn: r.str(s.RemoteColumn),
	}
}

func (r *resolver) queryParams(q QueryParams) QueryParams {
	return QueryParams{
		Filter:         r.filter(q.Filter),
		ScopeVia:       r.scopeVia(q.ScopeVia),
		OrderBy:        r.str(q.OrderBy),
		OrderDirection: q.OrderDirection,
		Limit:          q.Limit,
	}
}

func (r *resolver) columns(defs []ColumnDef) []ColumnDef {
	if defs == nil {
		return nil
	}
	out := make([]ColumnDef, len(defs))
	for i, d := range defs {
		out[i] = ColumnDef{
			Column: r.str(d.Column),
			Label:  r.str(d.Label),
			Format: d.Format,
		}
	}
	return out
}

func (r *resolver) component(c Component) Component {
	out := Component{
		Key:           c.Key,
		Type:          c.Type,
		Title:         r.str(c.Title),
		Source:        r.str(c.Source),
		HasDataSource: c.HasDataSource,
	}

	if c.InfoCard != nil {
		out.InfoCard = &InfoCardParams{
			QueryParams: r.queryParams(c.InfoCard.QueryParams),
			Columns:     r.columns(c.InfoCard.Columns),
		}
	}
	if c.DataGrid != nil {
		out.DataGrid = &DataGridParams{
			QueryParams: r.queryParams(c.DataGrid.QueryParams),
			Columns:     r.columns(c.DataGrid.Columns),
			Filterable:  c.DataGrid.Filterable,
			Collapsible: c.DataGrid.Collapsible,
		}
	}
	if c.KPIGroup != nil {
		out.KPIGroup = &KPIGroupParams{
			QueryParams: r.queryParams(c.KPIGroup.QueryParams),
			Metrics:     r.columns(c.KPIGroup.Metrics),
			TimeContext: c.KPIGroup.TimeContext,
			YearColumn:  c.KPIGroup.YearColumn,
		}
	}
	if c.TimeSeries != nil {
		metrics := make([]SeriesDef, len(c.TimeSeries.Metrics))
		for i, m := range c.TimeSeries.Metrics {
			metrics[i] = SeriesDef{Column: r.str(m.Column), Label: r.str(m.Label)}
		}
		out.TimeSeries = &TimeSeriesParams{
			QueryParams:    r.queryParams(c.TimeSeries.QueryParams),
			TimeColumn:     r.str(c.TimeSeries.TimeColumn),
			Metrics:        metrics,
			ValueColumn:    r.str(c.TimeSeries.ValueColumn),
			CategoryColumn: r.str(c.TimeSeries.CategoryColumn),
		}
	}
	if c.CategoryChart != nil {
		out.CategoryChart = &CategoryChartParams{
			QueryParams:    r.queryParams(c.CategoryChart.QueryParams),
			CategoryColumn: r.str(c.CategoryChart.CategoryColumn),
			ValueColumn:    r.str(c.CategoryChart.ValueColumn),
			StackByColumn:  r.str(c.CategoryChart.StackByColumn),
			TopN:           c.CategoryChart.TopN,
			TimeContext:    c.CategoryChart.TimeContext,
			YearColumn:     c.CategoryChart.YearColumn,
		}
	}
	if c.MapChart != nil {
		layers := make([]MapLayer, len(c.MapChart.Layers))
		for i, layer := range c.MapChart.Layers {
			properties := make([]string, len(layer.Properties))
			for j, p := range layer.Properties {
				properties[j] = r.str(p)
			}
			layers[i] = MapLayer{
				Name:           r.str(layer.Name),
				Source:         r.str(layer.Source),
				GeometryColumn: r.str(layer.GeometryColumn),
				Properties:     properties,
				Filter:         r.filter(layer.Filter),
				ScopeVia:       r.scopeVia(layer.ScopeVia),
			}
		}
		out.MapChart = &MapChartParams{
			Layers:                layers,
			AddressSource:         r.str(c.MapChart.AddressSource),
			AddressGeometryColumn: r.str(c.MapChart.AddressGeometryColumn),
		}
	}
	if c.Timeline != nil {
		groupBy := make([]string, len(c.Timeline.GroupByColumns))
		for i, g := range c.Timeline.GroupByColumns {
			groupBy[i] = r.str(g)
		}
		out.Timeline = &TimelineParams{
			QueryParams:       r.queryParams(c.Timeline.QueryParams),
			DateColumn:        r.str(c.Timeline.DateColumn),
			DescriptionColumn: r.str(c.Timeline.DescriptionColumn),
			GroupByColumns:    groupBy,
		}
	}
	if c.Iterated != nil {
		// Template children are deep-copied without substitution: their
		// placeholders reference the inner iterator's rows, which do not
		// exist yet at this level. The iterator source and filter do resolve
		// against the current context so a parent value can be threaded into
		// a nested iterator's filter.
		inner := &resolver{passthrough: true}
		template := make([]Component, len(c.Iterated.Template))
		for i, child := range c.Iterated.Template {
			template[i] = inner.component(child)
		}
		out.Iterated = &IteratedSectionParams{
			IteratorDataSource: IteratorDataSource{
				Source:   r.str(c.Iterated.IteratorDataSource.Source),
				Columns:  append([]string(nil), c.Iterated.IteratorDataSource.Columns...),
				Filter:   r.filter(c.Iterated.IteratorDataSource.Filter),
				ScopeVia: r.scopeVia(c.Iterated.IteratorDataSource.ScopeVia),
			},
			Template:        template,
			IterationConfig: c.Iterated.IterationConfig,
		}
	}

	return out
}
