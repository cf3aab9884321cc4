package component

import (
	"context"
	"encoding/json"
	"fmt"

	"agridash/internal/logging"
	"agridash/internal/pageconfig"
	"agridash/internal/query"
	"agridash/internal/sqlutil"
)

// Map zoom levels: close-up when the company's address point is known, wide
// country-level default otherwise.
const (
	zoomWithAddress = 13
	zoomDefault     = 9
)

// processMapChart resolves each configured layer into a GeoJSON feature
// collection, then fetches the company's address point to derive the map
// center and zoom. Layers are processed sequentially; a failing layer turns
// the whole component into an error fragment with the layers resolved so far
// discarded in favor of the uniform empty shape.
func (p *Processor) processMapChart(ctx context.Context, c pageconfig.Component, company Company, iterCtx map[string]any) MapChartResult {
	res := MapChartResult{Header: headerFor(c), Layers: []MapLayerResult{}, Zoom: zoomDefault}
	params := c.MapChart

	if len(params.Layers) == 0 {
		res.Error = "mapChart requires a layers parameter"
		return res
	}

	for _, layer := range params.Layers {
		features, err := p.layerFeatures(ctx, layer, company, iterCtx)
		if err != nil {
			res.Layers = []MapLayerResult{}
			res.Error = dbError(err)
			return res
		}
		res.Layers = append(res.Layers, MapLayerResult{Name: layer.Name, Features: features})
	}

	center := p.addressPoint(ctx, params, company)
	if center != nil {
		res.Center = center
		res.Zoom = zoomWithAddress
	}
	return res
}

func (p *Processor) layerFeatures(ctx context.Context, layer pageconfig.MapLayer, company Company, iterCtx map[string]any) ([]MapFeature, error) {
	if layer.Source == "" || layer.GeometryColumn == "" {
		return nil, fmt.Errorf("map layer %q requires source and geometryColumn", layer.Name)
	}

	selects := make([]string, 0, len(layer.Properties)+1)
	for _, prop := range layer.Properties {
		selects = append(selects, sqlutil.QuoteIdentifier(prop))
	}
	selects = append(selects, fmt.Sprintf("ST_AsGeoJSON(%s) AS %s",
		sqlutil.QuoteIdentifier(layer.GeometryColumn), sqlutil.QuoteIdentifier("geometry")))

	q, empty, err := p.builder.Build(ctx, query.Spec{
		Source:      layer.Source,
		SelectExprs: selects,
		Filter:      layer.Filter,
		ScopeVia:    layer.ScopeVia,
	}, company.ID, iterCtx)
	if err != nil {
		return nil, err
	}
	if empty {
		return []MapFeature{}, nil
	}

	rows, err := queryRows(ctx, p.exec, q)
	if err != nil {
		return nil, err
	}

	features := make([]MapFeature, 0, len(rows))
	for _, row := range rows {
		feature := MapFeature{Properties: make(map[string]any, len(layer.Properties))}
		if geo, ok := row["geometry"].(string); ok && geo != "" {
			feature.Geometry = json.RawMessage(geo)
		}
		for _, prop := range layer.Properties {
			feature.Properties[prop] = row[prop]
		}
		features = append(features, feature)
	}
	return features, nil
}

// addressPoint fetches the company's address geometry as GeoJSON. A missing
// or failing lookup only affects the viewport, never the component.
func (p *Processor) addressPoint(ctx context.Context, params *pageconfig.MapChartParams, company Company) json.RawMessage {
	source := params.AddressSource
	if source == "" {
		source = p.cfg.CompanyTable
	}
	geomColumn := params.AddressGeometryColumn
	if geomColumn == "" {
		geomColumn = p.cfg.AddressGeometryColumn
	}

	q, _, err := p.builder.Build(ctx, query.Spec{
		Source: source,
		SelectExprs: []string{fmt.Sprintf("ST_AsGeoJSON(%s) AS %s",
			sqlutil.QuoteIdentifier(geomColumn), sqlutil.QuoteIdentifier("geometry"))},
		Limit: 1,
	}, company.ID, nil)
	if err != nil {
		return nil
	}

	rows, err := queryRows(ctx, p.exec, q)
	if err != nil {
		logging.FromContext(ctx).Warn("address point lookup failed, using wide default zoom",
			"source", source, "error", err.Error())
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	if geo, ok := rows[0]["geometry"].(string); ok && geo != "" {
		return json.RawMessage(geo)
	}
	return nil
}
