// Package component resolves page configuration nodes into response
// fragments: it dispatches each node to its processor, runs the scoped
// queries, and shapes rows into the JSON contract of each component type.
package component

import "encoding/json"

// Header tags every result fragment with the originating node's identity.
type Header struct {
	Key   string `json:"_key"`
	Type  string `json:"_type"`
	Title string `json:"title,omitempty"`
}

// ErrorFragment replaces a component whose configuration could not be
// processed at all (unknown type, missing dataSource, unresolved placeholder).
type ErrorFragment struct {
	Header
	Error string `json:"error"`
}

// LabelValue is one display row of an info card.
type LabelValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// InfoCardResult is a flat label/value card built from at most one row.
type InfoCardResult struct {
	Header
	Items []LabelValue `json:"items"`
	Error string       `json:"error,omitempty"`
}

// GridColumn describes one column of a data grid.
type GridColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// DataGridResult is a many-row grid with formatted cell values.
type DataGridResult struct {
	Header
	Columns     []GridColumn        `json:"columns"`
	Rows        []map[string]string `json:"rows"`
	Filterable  bool                `json:"filterable,omitempty"`
	Collapsible bool                `json:"collapsible,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// KPI is one key figure of a KPI group.
type KPI struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// KPIGroupResult carries the key figures for one resolved year.
type KPIGroupResult struct {
	Header
	Year  int    `json:"year,omitempty"`
	KPIs  []KPI  `json:"kpis"`
	Error string `json:"error,omitempty"`
}

// ChartPoint is one x/y pair of a chart series.
type ChartPoint struct {
	X any `json:"x"`
	Y any `json:"y"`
}

// ChartSeries is one named series of a time-series chart.
type ChartSeries struct {
	Name string       `json:"name"`
	Data []ChartPoint `json:"data"`
}

// ChartResult is the output of the time-series chart family.
type ChartResult struct {
	Header
	Series []ChartSeries `json:"series"`
	Error  string        `json:"error,omitempty"`
}

// CategoryStack is one stacked segment of a category bar.
type CategoryStack struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CategoryValue is one bar of a category chart.
type CategoryValue struct {
	Category string          `json:"category"`
	Value    float64         `json:"value"`
	Stacks   []CategoryStack `json:"stacks,omitempty"`
}

// CategoryChartResult is a horizontal stacked bar chart for one year.
type CategoryChartResult struct {
	Header
	Year       int             `json:"year,omitempty"`
	Categories []CategoryValue `json:"categories"`
	Error      string          `json:"error,omitempty"`
}

// MapFeature is one GeoJSON feature of a map layer.
type MapFeature struct {
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// MapLayerResult is one named feature collection of a map chart.
type MapLayerResult struct {
	Name     string       `json:"name"`
	Features []MapFeature `json:"features"`
}

// MapChartResult carries feature layers plus the derived map viewport.
type MapChartResult struct {
	Header
	Layers []MapLayerResult `json:"layers"`
	Center json.RawMessage  `json:"center,omitempty"`
	Zoom   int              `json:"zoom"`
	Error  string           `json:"error,omitempty"`
}

// TimelineEvent is one event row; always carries date and description plus
// any configured grouping columns.
type TimelineEvent map[string]any

// TimelineResult is a date-ordered event list.
type TimelineResult struct {
	Header
	Events []TimelineEvent `json:"events"`
	Error  string          `json:"error,omitempty"`
}

// Section is one iteration's resolved content.
type Section struct {
	Title   string `json:"title"`
	Content []any  `json:"content"`
}

// IteratedSectionResult collects one section per iterator row.
type IteratedSectionResult struct {
	Header
	Layout   string    `json:"layout,omitempty"`
	Sections []Section `json:"sections"`
	Error    string    `json:"error,omitempty"`
}
