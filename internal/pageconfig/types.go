// Package pageconfig models the externally-hosted YAML page configuration:
// a tree of component declarations the resolver walks to build a dashboard
// response. Only iteratedSection nodes have children; every other node is a
// leaf with a dataSource block and type-specific parameters.
package pageconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Component type tags.
const (
	TypeInfoCard            = "infoCard"
	TypeDataGrid            = "dataGrid"
	TypeFilterableDataGrid  = "filterableDataGrid"
	TypeCollapsibleDataGrid = "collapsibleDataGrid"
	TypeKPIGroup            = "kpiGroup"
	TypeBarChart            = "barChart"
	TypeStackedBarChart     = "stackedBarChart"
	TypeComboChart          = "comboChart"
	TypeLineChart           = "lineChart"
	TypeMultiLineChart      = "multiLineChart"
	TypeCategoryChart       = "horizontalStackedBarChart"
	TypeMapChart            = "mapChart"
	TypeTimeline            = "timeline"
	TypeIteratedSection     = "iteratedSection"
)

// Document is the root of the page configuration.
type Document struct {
	PageBuilder []Component      `yaml:"pageBuilder"`
	Metadata    DocumentMetadata `yaml:"metadata"`
}

// DocumentMetadata carries the config version echoed in response envelopes.
type DocumentMetadata struct {
	ConfigVersion string `yaml:"configVersion"`
}

// Component is one node of the configuration tree. Exactly one of the typed
// parameter pointers is non-nil, selected by Type during unmarshalling. An
// unknown type leaves all of them nil; the walker renders those as a
// not-implemented error fragment rather than failing the whole document.
type Component struct {
	Key   string
	Type  string
	Title string

	// Source is the table or view the leaf component queries. Unset for
	// iteratedSection nodes and for components missing their dataSource.
	Source string
	// HasDataSource records whether a dataSource block was present at all,
	// independent of whether the type is known.
	HasDataSource bool

	InfoCard      *InfoCardParams
	DataGrid      *DataGridParams
	KPIGroup      *KPIGroupParams
	TimeSeries    *TimeSeriesParams
	CategoryChart *CategoryChartParams
	MapChart      *MapChartParams
	Timeline      *TimelineParams
	Iterated      *IteratedSectionParams
}

// FilterValue is one entry of a filter block: a literal value or the
// sentinel "latest", which resolves to the most recent year for the scope.
// Placeholder strings ({iteratorContext.<key>}) are ordinary string literals
// here; they are substituted structurally before the processor runs.
type FilterValue struct {
	IsLatest bool
	Value    any
}

// FilterLiteral builds a literal filter value. Used by tests and defaults.
func FilterLiteral(v any) FilterValue {
	return FilterValue{Value: v}
}

// FilterLatest builds the "latest" sentinel.
func FilterLatest() FilterValue {
	return FilterValue{IsLatest: true}
}

func (f *FilterValue) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	if s, ok := v.(string); ok && s == "latest" {
		f.IsLatest = true
		return nil
	}
	f.Value = v
	return nil
}

// ScopeVia declares an indirect join filter: restrict the component's source
// to rows whose RemoteColumn appears in the LocalColumn of Source, itself
// scoped to the current company. It replaces per-source special casing for
// sources that carry no direct company reference (e.g. animal production
// logs keyed only by herd number).
type ScopeVia struct {
	Source       string `yaml:"source"`
	LocalColumn  string `yaml:"localColumn"`
	RemoteColumn string `yaml:"remoteColumn"`
}

// QueryParams are the query-shaping fields shared by every leaf processor.
type QueryParams struct {
	Filter         map[string]FilterValue `yaml:"filter,omitempty"`
	ScopeVia       *ScopeVia              `yaml:"scopeVia,omitempty"`
	OrderBy        string                 `yaml:"orderBy,omitempty"`
	OrderDirection string                 `yaml:"orderDirection,omitempty"`
	Limit          int                    `yaml:"limit,omitempty"`
}

// ColumnDef maps a source column to a display label and optional format tag
// (boolean, date, datetime, currency, number).
type ColumnDef struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label"`
	Format string `yaml:"format,omitempty"`
}

// InfoCardParams configures a flat label/value card built from at most one row.
type InfoCardParams struct {
	QueryParams `yaml:",inline"`
	Columns     []ColumnDef `yaml:"columns"`
}

// DataGridParams configures a many-row grid. Filterable and Collapsible are
// capability flags derived from the component type; they do not change the query.
type DataGridParams struct {
	QueryParams `yaml:",inline"`
	Columns     []ColumnDef `yaml:"columns"`
	Filterable  bool        `yaml:"-"`
	Collapsible bool        `yaml:"-"`
}

// KPIGroupParams configures a group of single-value metrics for one target year.
type KPIGroupParams struct {
	QueryParams `yaml:",inline"`
	Metrics     []ColumnDef `yaml:"metrics"`
	TimeContext string      `yaml:"timeContext,omitempty"`
	YearColumn  string      `yaml:"yearColumn,omitempty"`
}

// SeriesDef names one metric column of a time-series chart.
type SeriesDef struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label"`
}

// TimeSeriesParams configures bar/line/combo charts over a time axis.
// Either Metrics names N independent value columns, or ValueColumn plus
// CategoryColumn produces one named series per distinct category.
type TimeSeriesParams struct {
	QueryParams    `yaml:",inline"`
	TimeColumn     string      `yaml:"timeColumn"`
	Metrics        []SeriesDef `yaml:"metrics,omitempty"`
	ValueColumn    string      `yaml:"valueColumn,omitempty"`
	CategoryColumn string      `yaml:"categoryColumn,omitempty"`
}

// CategoryChartParams configures a horizontal stacked bar chart grouped by a
// category column for a single resolved year.
type CategoryChartParams struct {
	QueryParams    `yaml:",inline"`
	CategoryColumn string `yaml:"categoryColumn"`
	ValueColumn    string `yaml:"valueColumn"`
	StackByColumn  string `yaml:"stackByColumn,omitempty"`
	TopN           int    `yaml:"topN,omitempty"`
	TimeContext    string `yaml:"timeContext,omitempty"`
	YearColumn     string `yaml:"yearColumn,omitempty"`
}

// MapLayer is one named feature layer of a map chart.
type MapLayer struct {
	Name           string                 `yaml:"name"`
	Source         string                 `yaml:"source"`
	GeometryColumn string                 `yaml:"geometryColumn"`
	Properties     []string               `yaml:"properties,omitempty"`
	Filter         map[string]FilterValue `yaml:"filter,omitempty"`
	ScopeVia       *ScopeVia              `yaml:"scopeVia,omitempty"`
}

// MapChartParams configures a map with one or more feature layers plus the
// company address point used to derive the map center and zoom.
type MapChartParams struct {
	Layers []MapLayer `yaml:"layers"`
	// AddressSource/AddressGeometryColumn locate the company address point.
	// Both default to the company table conventions when empty.
	AddressSource         string `yaml:"addressSource,omitempty"`
	AddressGeometryColumn string `yaml:"addressGeometryColumn,omitempty"`
}

// TimelineParams configures a date-ordered event list.
type TimelineParams struct {
	QueryParams       `yaml:",inline"`
	DateColumn        string   `yaml:"dateColumn"`
	DescriptionColumn string   `yaml:"descriptionColumn"`
	GroupByColumns    []string `yaml:"groupByColumns,omitempty"`
}

// IteratorDataSource is the query producing one context row per iteration.
type IteratorDataSource struct {
	Source   string                 `yaml:"source"`
	Columns  []string               `yaml:"columns,omitempty"`
	Filter   map[string]FilterValue `yaml:"filter,omitempty"`
	ScopeVia *ScopeVia              `yaml:"scopeVia,omitempty"`
}

// IterationConfig shapes how each iteration's section is titled and laid out.
type IterationConfig struct {
	TitleField string `yaml:"titleField,omitempty"`
	Layout     string `yaml:"layout,omitempty"`
}

// IteratedSectionParams configures a section repeated once per iterator row,
// with the row supplying the substitution context for the template children.
type IteratedSectionParams struct {
	IteratorDataSource IteratorDataSource `yaml:"iteratorDataSource"`
	Template           []Component        `yaml:"template"`
	IterationConfig    IterationConfig    `yaml:"iterationConfig"`
}

type componentHead struct {
	Key   string `yaml:"_key"`
	Type  string `yaml:"_type"`
	Title string `yaml:"title"`
}

type dataSourceEnvelope struct {
	DataSource *struct {
		Source string    `yaml:"source"`
		Params yaml.Node `yaml:"params"`
	} `yaml:"dataSource"`
}

func (c *Component) UnmarshalYAML(node *yaml.Node) error {
	var head componentHead
	if err := node.Decode(&head); err != nil {
		return err
	}
	c.Key = head.Key
	c.Type = head.Type
	c.Title = head.Title

	if head.Type == TypeIteratedSection {
		var body struct {
			IteratorDataSource IteratorDataSource `yaml:"iteratorDataSource"`
			Template           []Component        `yaml:"template"`
			IterationConfig    IterationConfig    `yaml:"iterationConfig"`
		}
		if err := node.Decode(&body); err != nil {
			return fmt.Errorf("component %q: %w", head.Key, err)
		}
		c.Iterated = &IteratedSectionParams{
			IteratorDataSource: body.IteratorDataSource,
			Template:           body.Template,
			IterationConfig:    body.IterationConfig,
		}
		return nil
	}

	var envelope dataSourceEnvelope
	if err := node.Decode(&envelope); err != nil {
		return fmt.Errorf("component %q: %w", head.Key, err)
	}
	if envelope.DataSource == nil {
		// The walker turns missing dataSources into error fragments, except
		// for mapCharts whose layers each carry their own source.
		if head.Type != TypeMapChart {
			return nil
		}
	} else {
		c.HasDataSource = true
		c.Source = envelope.DataSource.Source
	}

	decodeParams := func(out any) error {
		if envelope.DataSource == nil || envelope.DataSource.Params.Kind == 0 {
			return nil
		}
		if err := envelope.DataSource.Params.Decode(out); err != nil {
			return fmt.Errorf("component %q: %w", head.Key, err)
		}
		return nil
	}

	switch head.Type {
	case TypeInfoCard:
		p := new(InfoCardParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.InfoCard = p
	case TypeDataGrid, TypeFilterableDataGrid, TypeCollapsibleDataGrid:
		p := new(DataGridParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		p.Filterable = head.Type == TypeFilterableDataGrid
		p.Collapsible = head.Type == TypeCollapsibleDataGrid
		c.DataGrid = p
	case TypeKPIGroup:
		p := new(KPIGroupParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.KPIGroup = p
	case TypeBarChart, TypeStackedBarChart, TypeComboChart, TypeLineChart, TypeMultiLineChart:
		p := new(TimeSeriesParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.TimeSeries = p
	case TypeCategoryChart:
		p := new(CategoryChartParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.CategoryChart = p
	case TypeMapChart:
		p := new(MapChartParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.MapChart = p
	case TypeTimeline:
		p := new(TimelineParams)
		if err := decodeParams(p); err != nil {
			return err
		}
		c.Timeline = p
	default:
		// Unknown type: keep the head fields so the walker can name it in
		// the not-implemented fragment.
	}

	return nil
}

// Parse decodes a YAML page configuration document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse page configuration: %w", err)
	}
	return &doc, nil
}
