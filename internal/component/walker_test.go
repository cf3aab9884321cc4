package component

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"agridash/internal/catalog"
	"agridash/internal/dbexec"
	"agridash/internal/pageconfig"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCompany = Company{
	ID:           "0c7e9f3a-52c4-4e1f-b1d2-8a54c1de9e01",
	CVR:          "12345678",
	Municipality: "Viborg",
}

func newTestWalker(t *testing.T) (*Walker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exec := dbexec.NewStandardExecutor(db)
	conventions := catalog.Conventions{
		CompanyIDColumn: "company_id",
		SiteScopeColumn: "chr",
		YearColumn:      "year",
	}
	columns := catalog.NewColumnCache(exec, nil)
	latest := catalog.NewLatestYearResolver(exec, columns, conventions)
	processor := NewProcessor(exec, columns, latest, nil, Config{
		Conventions:      conventions,
		CompanyTable:     "companies",
		CompanyPKColumn:  "id",
		DefaultGridLimit: 500,
	})
	return NewWalker(processor, nil), mock
}

func expectColumn(mock sqlmock.Sqlmock, table, column string, exists bool) {
	q := mock.ExpectQuery(regexp.QuoteMeta(`SELECT "` + column + `" FROM "` + table + `" LIMIT 0`))
	if exists {
		q.WillReturnRows(sqlmock.NewRows([]string{column}))
	} else {
		q.WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedColumn})
	}
}

func TestInfoCardZeroRowsIsEmptyShape(t *testing.T) {
	w, mock := newTestWalker(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "name", "cvr" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "cvr"}))

	c := pageconfig.Component{
		Key:           "company_info",
		Type:          pageconfig.TypeInfoCard,
		Title:         "Stamdata",
		Source:        "companies",
		HasDataSource: true,
		InfoCard: &pageconfig.InfoCardParams{
			Columns: []pageconfig.ColumnDef{
				{Column: "name", Label: "Navn"},
				{Column: "cvr", Label: "CVR"},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil)
	card, ok := result.(InfoCardResult)
	require.True(t, ok)

	assert.Equal(t, "company_info", card.Key)
	assert.Equal(t, pageconfig.TypeInfoCard, card.Type)
	assert.Empty(t, card.Items)
	assert.Empty(t, card.Error)

	// The empty shape serializes with items present and no error key.
	encoded, err := json.Marshal(card)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_key":"company_info","_type":"infoCard","title":"Stamdata","items":[]}`, string(encoded))
}

func TestInfoCardFormatsValues(t *testing.T) {
	w, mock := newTestWalker(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "name", "organic", "established" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"name", "organic", "established"}).
			AddRow("Gammelgård I/S", true, "2001-03-15"))

	c := pageconfig.Component{
		Key:           "company_info",
		Type:          pageconfig.TypeInfoCard,
		Source:        "companies",
		HasDataSource: true,
		InfoCard: &pageconfig.InfoCardParams{
			Columns: []pageconfig.ColumnDef{
				{Column: "name", Label: "Navn"},
				{Column: "organic", Label: "Økologisk", Format: FormatBoolean},
				{Column: "established", Label: "Etableret", Format: FormatDate},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(InfoCardResult)
	require.Len(t, result.Items, 3)
	assert.Equal(t, LabelValue{Label: "Navn", Value: "Gammelgård I/S"}, result.Items[0])
	assert.Equal(t, LabelValue{Label: "Økologisk", Value: "Ja"}, result.Items[1])
	assert.Equal(t, LabelValue{Label: "Etableret", Value: "15.03.2001"}, result.Items[2])
}

func TestKPIGroupLatestYearResolution(t *testing.T) {
	w, mock := newTestWalker(t)

	// Latest-year resolution: no site context, source has company_id.
	expectColumn(mock, "herd_sizes", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "year" FROM "herd_sizes" WHERE "year" IS NOT NULL AND "company_id" = $1 ORDER BY "year" DESC LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"year"}).AddRow(2023))

	// KPI row for the resolved year only.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "cattle", "pigs" FROM "herd_sizes" WHERE "company_id" = $1 AND "year" = $2 LIMIT 1`)).
		WithArgs(testCompany.ID, 2023).
		WillReturnRows(sqlmock.NewRows([]string{"cattle", "pigs"}).AddRow(120, 3400))

	c := pageconfig.Component{
		Key:           "herd_kpis",
		Type:          pageconfig.TypeKPIGroup,
		Source:        "herd_sizes",
		HasDataSource: true,
		KPIGroup: &pageconfig.KPIGroupParams{
			QueryParams: pageconfig.QueryParams{
				Filter: map[string]pageconfig.FilterValue{
					"year": pageconfig.FilterLatest(),
				},
			},
			Metrics: []pageconfig.ColumnDef{
				{Column: "cattle", Label: "Kvæg", Format: FormatNumber},
				{Column: "pigs", Label: "Svin", Format: FormatNumber},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(KPIGroupResult)
	assert.Empty(t, result.Error)
	assert.Equal(t, 2023, result.Year)
	require.Len(t, result.KPIs, 2)
	assert.Equal(t, KPI{Key: "cattle", Label: "Kvæg", Value: "120"}, result.KPIs[0])
	assert.Equal(t, KPI{Key: "pigs", Label: "Svin", Value: "3.400"}, result.KPIs[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKPIGroupLatestResolvesToNothing(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "herd_sizes", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "year" FROM "herd_sizes"`)).
		WillReturnRows(sqlmock.NewRows([]string{"year"}))

	c := pageconfig.Component{
		Key:           "herd_kpis",
		Type:          pageconfig.TypeKPIGroup,
		Source:        "herd_sizes",
		HasDataSource: true,
		KPIGroup: &pageconfig.KPIGroupParams{
			QueryParams: pageconfig.QueryParams{
				Filter: map[string]pageconfig.FilterValue{
					"year": pageconfig.FilterLatest(),
				},
			},
			Metrics: []pageconfig.ColumnDef{{Column: "cattle", Label: "Kvæg"}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(KPIGroupResult)
	assert.Empty(t, result.Error, "an unresolvable latest year must yield the empty shape, not an error")
	assert.Empty(t, result.KPIs)
	assert.Zero(t, result.Year)
}

func TestDataGridDatabaseError(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "subsidies", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "scheme", "amount" FROM "subsidies"`)).
		WillReturnError(errors.New("deadlock detected"))

	c := pageconfig.Component{
		Key:           "subsidies_grid",
		Type:          pageconfig.TypeDataGrid,
		Source:        "subsidies",
		HasDataSource: true,
		DataGrid: &pageconfig.DataGridParams{
			Columns: []pageconfig.ColumnDef{
				{Column: "scheme", Label: "Ordning"},
				{Column: "amount", Label: "Beløb", Format: FormatCurrency},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(DataGridResult)
	assert.Equal(t, "Database error: deadlock detected", result.Error)
	assert.Empty(t, result.Rows)
	assert.Len(t, result.Columns, 2, "the empty shape stays structurally present")
}

func TestUnknownComponentType(t *testing.T) {
	w, _ := newTestWalker(t)

	c := pageconfig.Component{
		Key:           "mystery",
		Type:          "pieChart",
		Title:         "Unknown",
		HasDataSource: true,
	}

	result := w.Process(context.Background(), c, testCompany, nil).(ErrorFragment)
	assert.Equal(t, "Component type pieChart not implemented.", result.Error)
	assert.Equal(t, "mystery", result.Key)
}

func TestMissingDataSource(t *testing.T) {
	w, _ := newTestWalker(t)

	c := pageconfig.Component{
		Key:  "broken",
		Type: pageconfig.TypeInfoCard,
		InfoCard: &pageconfig.InfoCardParams{
			Columns: []pageconfig.ColumnDef{{Column: "name", Label: "Navn"}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(ErrorFragment)
	assert.Contains(t, result.Error, "missing its dataSource")
}

func TestIteratedSectionZeroRows(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "production_sites", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "chr", "site_name" FROM "production_sites" WHERE "company_id" = $1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"chr", "site_name"}))

	c := pageconfig.Component{
		Key:  "sites",
		Type: pageconfig.TypeIteratedSection,
		Iterated: &pageconfig.IteratedSectionParams{
			IteratorDataSource: pageconfig.IteratorDataSource{
				Source:  "production_sites",
				Columns: []string{"chr", "site_name"},
			},
			Template: []pageconfig.Component{{
				Key:           "site_card",
				Type:          pageconfig.TypeInfoCard,
				Source:        "herds",
				HasDataSource: true,
				InfoCard:      &pageconfig.InfoCardParams{Columns: []pageconfig.ColumnDef{{Column: "species", Label: "Art"}}},
			}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(IteratedSectionResult)
	assert.Empty(t, result.Error)
	assert.NotNil(t, result.Sections)
	assert.Empty(t, result.Sections)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"sections":[]`)
}

func TestIteratedSectionThreeSites(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "production_sites", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "chr", "site_name" FROM "production_sites" WHERE "company_id" = $1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"chr", "site_name"}).
			AddRow("11111", "Nordgården").
			AddRow("22222", "Sydgården").
			AddRow("33333", "Østergård"))

	// The herds source has no company_id column, so each template query is
	// scoped purely by the substituted site identifier.
	expectColumn(mock, "herds", "company_id", false)
	for _, chr := range []string{"11111", "22222", "33333"} {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "species" FROM "herds" WHERE "chr" = $1 LIMIT 1`)).
			WithArgs(chr).
			WillReturnRows(sqlmock.NewRows([]string{"species"}).AddRow("Kvæg"))
	}

	c := pageconfig.Component{
		Key:   "sites",
		Type:  pageconfig.TypeIteratedSection,
		Title: "Produktionssteder",
		Iterated: &pageconfig.IteratedSectionParams{
			IteratorDataSource: pageconfig.IteratorDataSource{
				Source:  "production_sites",
				Columns: []string{"chr", "site_name"},
			},
			IterationConfig: pageconfig.IterationConfig{TitleField: "site_name", Layout: "tabs"},
			Template: []pageconfig.Component{{
				Key:           "site_herds",
				Type:          pageconfig.TypeInfoCard,
				Source:        "herds",
				HasDataSource: true,
				InfoCard: &pageconfig.InfoCardParams{
					QueryParams: pageconfig.QueryParams{
						Filter: map[string]pageconfig.FilterValue{
							"chr": pageconfig.FilterLiteral("{iteratorContext.chr}"),
						},
					},
					Columns: []pageconfig.ColumnDef{{Column: "species", Label: "Art"}},
				},
			}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(IteratedSectionResult)
	require.Empty(t, result.Error)
	require.Len(t, result.Sections, 3)

	assert.Equal(t, "tabs", result.Layout)
	assert.Equal(t, "Nordgården", result.Sections[0].Title)
	assert.Equal(t, "Sydgården", result.Sections[1].Title)
	assert.Equal(t, "Østergård", result.Sections[2].Title)

	for _, section := range result.Sections {
		require.Len(t, section.Content, 1)
		card, ok := section.Content[0].(InfoCardResult)
		require.True(t, ok)
		assert.Empty(t, card.Error)
		require.Len(t, card.Items, 1)
		assert.Equal(t, "Kvæg", card.Items[0].Value)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIteratedSectionUnresolvedKeyIsolatesSiblings(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "production_sites", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "chr" FROM "production_sites" WHERE "company_id" = $1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"chr"}).AddRow("11111"))

	// Only the healthy sibling reaches the database.
	expectColumn(mock, "herds", "company_id", false)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "species" FROM "herds" WHERE "chr" = $1 LIMIT 1`)).
		WithArgs("11111").
		WillReturnRows(sqlmock.NewRows([]string{"species"}).AddRow("Svin"))

	c := pageconfig.Component{
		Key:  "sites",
		Type: pageconfig.TypeIteratedSection,
		Iterated: &pageconfig.IteratedSectionParams{
			IteratorDataSource: pageconfig.IteratorDataSource{
				Source:  "production_sites",
				Columns: []string{"chr"},
			},
			Template: []pageconfig.Component{
				{
					Key:           "bad_card",
					Type:          pageconfig.TypeInfoCard,
					Source:        "stables",
					HasDataSource: true,
					InfoCard: &pageconfig.InfoCardParams{
						QueryParams: pageconfig.QueryParams{
							Filter: map[string]pageconfig.FilterValue{
								"stable_id": pageconfig.FilterLiteral("{iteratorContext.stable_id}"),
							},
						},
						Columns: []pageconfig.ColumnDef{{Column: "name", Label: "Navn"}},
					},
				},
				{
					Key:           "good_card",
					Type:          pageconfig.TypeInfoCard,
					Source:        "herds",
					HasDataSource: true,
					InfoCard: &pageconfig.InfoCardParams{
						QueryParams: pageconfig.QueryParams{
							Filter: map[string]pageconfig.FilterValue{
								"chr": pageconfig.FilterLiteral("{iteratorContext.chr}"),
							},
						},
						Columns: []pageconfig.ColumnDef{{Column: "species", Label: "Art"}},
					},
				},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(IteratedSectionResult)
	require.Len(t, result.Sections, 1)
	require.Len(t, result.Sections[0].Content, 2)

	bad, ok := result.Sections[0].Content[0].(ErrorFragment)
	require.True(t, ok)
	assert.Contains(t, bad.Error, "stable_id")

	good, ok := result.Sections[0].Content[1].(InfoCardResult)
	require.True(t, ok)
	assert.Empty(t, good.Error)
	require.Len(t, good.Items, 1)
	assert.Equal(t, "Svin", good.Items[0].Value)
}

func TestTimeSeriesGroupedByCategory(t *testing.T) {
	w, mock := newTestWalker(t)

	c := pageconfig.Component{
		Key:           "movements",
		Type:          pageconfig.TypeLineChart,
		Source:        "animal_movements",
		HasDataSource: true,
		TimeSeries: &pageconfig.TimeSeriesParams{
			TimeColumn:     "date",
			ValueColumn:    "count",
			CategoryColumn: "species",
			QueryParams: pageconfig.QueryParams{
				ScopeVia: &pageconfig.ScopeVia{
					Source:       "herds",
					LocalColumn:  "chr",
					RemoteColumn: "chr",
				},
			},
		},
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "date", "species", "count" FROM "animal_movements" WHERE "chr" IN (SELECT "chr" FROM "herds" WHERE "company_id" = $1) ORDER BY "date" ASC`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"date", "species", "count"}).
			AddRow("2023-01-01", "Kvæg", 12).
			AddRow("2023-01-01", "Svin", 140).
			AddRow("2023-02-01", "Kvæg", 9))

	result := w.Process(context.Background(), c, testCompany, nil).(ChartResult)
	require.Empty(t, result.Error)
	require.Len(t, result.Series, 2)

	// Series are ordered by category name.
	assert.Equal(t, "Kvæg", result.Series[0].Name)
	assert.Len(t, result.Series[0].Data, 2)
	assert.Equal(t, "Svin", result.Series[1].Name)
	assert.Len(t, result.Series[1].Data, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeSeriesIndependentMetrics(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "field_yields", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "year", "wheat", "barley" FROM "field_yields" WHERE "company_id" = $1 ORDER BY "year" ASC`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"year", "wheat", "barley"}).
			AddRow(2022, 8.1, 6.4).
			AddRow(2023, 8.4, 6.1))

	c := pageconfig.Component{
		Key:           "yields",
		Type:          pageconfig.TypeBarChart,
		Source:        "field_yields",
		HasDataSource: true,
		TimeSeries: &pageconfig.TimeSeriesParams{
			TimeColumn: "year",
			Metrics: []pageconfig.SeriesDef{
				{Column: "wheat", Label: "Hvede"},
				{Column: "barley", Label: "Byg"},
			},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(ChartResult)
	require.Len(t, result.Series, 2)
	assert.Equal(t, "Hvede", result.Series[0].Name)
	assert.Equal(t, "Byg", result.Series[1].Name)
	require.Len(t, result.Series[0].Data, 2)
	assert.Equal(t, int64(2022), result.Series[0].Data[0].X)
}

func TestCategoryChartTopN(t *testing.T) {
	w, mock := newTestWalker(t)

	// Latest-year resolution for the chart's source.
	expectColumn(mock, "crop_areas", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "year" FROM "crop_areas" WHERE "year" IS NOT NULL AND "company_id" = $1 ORDER BY "year" DESC LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"year"}).AddRow(2023))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "crop", "hectares" FROM "crop_areas" WHERE "company_id" = $1 AND "year" = $2`)).
		WithArgs(testCompany.ID, 2023).
		WillReturnRows(sqlmock.NewRows([]string{"crop", "hectares"}).
			AddRow("Hvede", 120.5).
			AddRow("Byg", 80.0).
			AddRow("Raps", 45.2).
			AddRow("Havre", 12.0))

	c := pageconfig.Component{
		Key:           "crops",
		Type:          pageconfig.TypeCategoryChart,
		Source:        "crop_areas",
		HasDataSource: true,
		CategoryChart: &pageconfig.CategoryChartParams{
			CategoryColumn: "crop",
			ValueColumn:    "hectares",
			TopN:           2,
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(CategoryChartResult)
	require.Empty(t, result.Error)
	assert.Equal(t, 2023, result.Year)
	require.Len(t, result.Categories, 2)
	assert.Equal(t, "Hvede", result.Categories[0].Category)
	assert.Equal(t, "Byg", result.Categories[1].Category)
}

func TestMapChartLayersAndViewport(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "field_boundaries", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "field_id", ST_AsGeoJSON("geom") AS "geometry" FROM "field_boundaries" WHERE "company_id" = $1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"field_id", "geometry"}).
			AddRow("f1", `{"type":"Polygon","coordinates":[]}`))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ST_AsGeoJSON("geom") AS "geometry" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"geometry"}).
			AddRow(`{"type":"Point","coordinates":[9.5,56.4]}`))

	c := pageconfig.Component{
		Key:  "farm_map",
		Type: pageconfig.TypeMapChart,
		MapChart: &pageconfig.MapChartParams{
			Layers: []pageconfig.MapLayer{{
				Name:           "Marker",
				Source:         "field_boundaries",
				GeometryColumn: "geom",
				Properties:     []string{"field_id"},
			}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(MapChartResult)
	require.Empty(t, result.Error)
	require.Len(t, result.Layers, 1)
	require.Len(t, result.Layers[0].Features, 1)
	assert.Equal(t, "f1", result.Layers[0].Features[0].Properties["field_id"])
	assert.JSONEq(t, `{"type":"Polygon","coordinates":[]}`, string(result.Layers[0].Features[0].Geometry))
	assert.Equal(t, zoomWithAddress, result.Zoom)
	assert.JSONEq(t, `{"type":"Point","coordinates":[9.5,56.4]}`, string(result.Center))
}

func TestMapChartNoAddressUsesWideZoom(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "field_boundaries", "company_id", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ST_AsGeoJSON("geom") AS "geometry" FROM "field_boundaries" WHERE "company_id" = $1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"geometry"}))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ST_AsGeoJSON("geom") AS "geometry" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
		WithArgs(testCompany.ID).
		WillReturnRows(sqlmock.NewRows([]string{"geometry"}))

	c := pageconfig.Component{
		Key:  "farm_map",
		Type: pageconfig.TypeMapChart,
		MapChart: &pageconfig.MapChartParams{
			Layers: []pageconfig.MapLayer{{
				Name:           "Marker",
				Source:         "field_boundaries",
				GeometryColumn: "geom",
			}},
		},
	}

	result := w.Process(context.Background(), c, testCompany, nil).(MapChartResult)
	assert.Equal(t, zoomDefault, result.Zoom)
	assert.Nil(t, result.Center)
}

func TestTimelinePrefersSiteScope(t *testing.T) {
	w, mock := newTestWalker(t)

	expectColumn(mock, "veterinary_events", "chr", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "date", "description", "category" FROM "veterinary_events" WHERE "chr" = $1 ORDER BY "date" DESC LIMIT 500`)).
		WithArgs("11111").
		WillReturnRows(sqlmock.NewRows([]string{"date", "description", "category"}).
			AddRow("2023-04-01", "Dyrlægebesøg", "kontrol"))

	c := pageconfig.Component{
		Key:           "events",
		Type:          pageconfig.TypeTimeline,
		Source:        "veterinary_events",
		HasDataSource: true,
		Timeline: &pageconfig.TimelineParams{
			DateColumn:        "date",
			DescriptionColumn: "description",
			GroupByColumns:    []string{"category"},
		},
	}

	result := w.Process(context.Background(), c, testCompany, map[string]any{"chr": "11111"}).(TimelineResult)
	require.Empty(t, result.Error)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "01.04.2023", result.Events[0]["date"])
	assert.Equal(t, "Dyrlægebesøg", result.Events[0]["description"])
	assert.Equal(t, "kontrol", result.Events[0]["category"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkerOneResultPerTopLevelNode(t *testing.T) {
	w, mock := newTestWalker(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "name" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Gammelgård I/S"))

	components := []pageconfig.Component{
		{
			Key: "card", Type: pageconfig.TypeInfoCard, Source: "companies", HasDataSource: true,
			InfoCard: &pageconfig.InfoCardParams{Columns: []pageconfig.ColumnDef{{Column: "name", Label: "Navn"}}},
		},
		{Key: "mystery", Type: "gauge", HasDataSource: true},
		{Key: "broken", Type: pageconfig.TypeDataGrid, DataGrid: &pageconfig.DataGridParams{}},
	}

	results := w.ProcessAll(context.Background(), components, testCompany)
	require.Len(t, results, 3)

	assert.Equal(t, "card", results[0].(InfoCardResult).Key)
	assert.Equal(t, "mystery", results[1].(ErrorFragment).Key)
	assert.Equal(t, "broken", results[2].(ErrorFragment).Key)
}

func TestWalkerIdempotence(t *testing.T) {
	w, mock := newTestWalker(t)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "name", "cvr" FROM "companies" WHERE "id" = $1 LIMIT 1`)).
			WithArgs(testCompany.ID).
			WillReturnRows(sqlmock.NewRows([]string{"name", "cvr"}).AddRow("Gammelgård I/S", "12345678"))
	}

	c := pageconfig.Component{
		Key:           "company_info",
		Type:          pageconfig.TypeInfoCard,
		Source:        "companies",
		HasDataSource: true,
		InfoCard: &pageconfig.InfoCardParams{
			Columns: []pageconfig.ColumnDef{
				{Column: "name", Label: "Navn"},
				{Column: "cvr", Label: "CVR"},
			},
		},
	}

	first, err := json.Marshal(w.Process(context.Background(), c, testCompany, nil))
	require.NoError(t, err)
	second, err := json.Marshal(w.Process(context.Background(), c, testCompany, nil))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
