package http

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/jobrunner/charttiler/internal/domain"
)

// Layer names of exported tile data.
const (
	layerCoverage    = "coverage"
	layerLand        = "land"
	layerDepthAreas  = "depth_areas"
	layerContours    = "depth_contours"
	layerCoastlines  = "coastlines"
	layerBuiltUp     = "built_up"
	layerLabels      = "labels"
	layerSoundings   = "soundings"
	layerBeacons     = "beacons"
	layerRocks       = "rocks"
	layerBuoys       = "buoys"
	layerConstructed = "constructions"
	layerRoads       = "roads"
)

// featureLayers converts chart fragments to one feature collection per
// layer. Charts are expected in paint order; features keep that order.
// Geometries are copied so the caller may project them in place.
func featureLayers(charts []*domain.Chart) map[string]*geojson.FeatureCollection {
	layers := make(map[string]*geojson.FeatureCollection)
	add := func(layer string, g orb.Geometry, chart string, props geojson.Properties) {
		if g == nil {
			return
		}
		fc, ok := layers[layer]
		if !ok {
			fc = geojson.NewFeatureCollection()
			layers[layer] = fc
		}
		f := geojson.NewFeature(orb.Clone(g))
		for k, v := range props {
			f.Properties[k] = v
		}
		f.Properties["chart"] = chart
		fc.Append(f)
	}
	named := func(name string) geojson.Properties {
		if name == "" {
			return nil
		}
		return geojson.Properties{"name": name}
	}

	for _, c := range charts {
		for _, a := range c.Coverage {
			add(layerCoverage, multiPolygon(a.Polygons), c.Name, nil)
		}
		for _, a := range c.LandAreas {
			add(layerLand, multiPolygon(a.Polygons), c.Name, named(a.Name))
			if a.Name != "" {
				add(layerLabels, a.Centroid, c.Name, geojson.Properties{"name": a.Name, "kind": "land"})
			}
		}
		for _, p := range c.LandRegions {
			add(layerLabels, p.Position, c.Name, geojson.Properties{"name": p.Name, "kind": "region"})
		}
		for _, a := range c.DepthAreas {
			add(layerDepthAreas, multiPolygon(a.Polygons), c.Name, geojson.Properties{"depth": a.Depth})
		}
		for _, l := range c.DepthContours {
			add(layerContours, multiLine(l.Lines), c.Name, nil)
		}
		for _, l := range c.CoastLines {
			add(layerCoastlines, multiLine(l.Lines), c.Name, nil)
		}
		for _, a := range c.BuiltUpAreas {
			add(layerBuiltUp, multiPolygon(a.Polygons), c.Name, named(a.Name))
		}
		for _, p := range c.BuiltUpPoints {
			add(layerLabels, p.Position, c.Name, geojson.Properties{"name": p.Name, "kind": "built_up"})
		}
		for _, s := range c.Soundings {
			add(layerSoundings, s.Position, c.Name, geojson.Properties{"depth": s.Depth})
		}
		for _, b := range c.Beacons {
			props := geojson.Properties{"shape": int(b.Shape)}
			if b.Name != "" {
				props["name"] = b.Name
			}
			add(layerBeacons, b.Position, c.Name, props)
		}
		for _, r := range c.UnderwaterRocks {
			add(layerRocks, r.Position, c.Name, geojson.Properties{"depth": r.Depth, "water_level": int(r.WaterLevel)})
		}
		for _, b := range c.LateralBuoys {
			colors := make([]string, 0, len(b.Colors))
			for _, col := range b.Colors {
				colors = append(colors, col.String())
			}
			// Vector tiles only carry scalar values.
			props := geojson.Properties{"category": int(b.Category), "shape": int(b.Shape), "colors": strings.Join(colors, ",")}
			if b.Name != "" {
				props["name"] = b.Name
			}
			add(layerBuoys, b.Position, c.Name, props)
		}
		for _, k := range c.Pontoons {
			props := geojson.Properties{"kind": "pontoon"}
			addConstruction(add, layerConstructed, k, c.Name, props)
		}
		for _, k := range c.ShorelineConstructions {
			props := geojson.Properties{"kind": "shoreline"}
			addConstruction(add, layerConstructed, k, c.Name, props)
		}
		for _, r := range c.Roads {
			props := geojson.Properties{"category": int(r.Category)}
			if r.Name != "" {
				props["name"] = r.Name
			}
			add(layerRoads, multiPolygon(r.Polygons), c.Name, props)
			add(layerRoads, multiLine(r.Lines), c.Name, props)
		}
	}
	return layers
}

func addConstruction(
	add func(string, orb.Geometry, string, geojson.Properties),
	layer string,
	k domain.Construction,
	chart string,
	props geojson.Properties,
) {
	if k.Name != "" {
		props["name"] = k.Name
	}
	add(layer, multiPolygon(k.Polygons), chart, props)
	add(layer, multiLine(k.Lines), chart, props)
}

func multiPolygon(polygons []orb.Polygon) orb.Geometry {
	switch len(polygons) {
	case 0:
		return nil
	case 1:
		return polygons[0]
	default:
		return orb.MultiPolygon(polygons)
	}
}

func multiLine(lines orb.MultiLineString) orb.Geometry {
	switch len(lines) {
	case 0:
		return nil
	case 1:
		return lines[0]
	default:
		return lines
	}
}

// featureCollection flattens the layers into one collection, tagging each
// feature with its layer. Layers are sorted by name.
func featureCollection(charts []*domain.Chart) *geojson.FeatureCollection {
	layers := featureLayers(charts)
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := geojson.NewFeatureCollection()
	for _, name := range names {
		for _, f := range layers[name].Features {
			f.Properties["layer"] = name
			out.Append(f)
		}
	}
	return out
}

// vectorTile encodes the fragments of a slippy tile as a gzipped Mapbox
// Vector Tile.
func vectorTile(charts []*domain.Chart, tile maptile.Tile) ([]byte, error) {
	layers := mvt.NewLayers(featureLayers(charts))
	layers.ProjectToTile(tile)
	layers.Clip(mvt.MapboxGLDefaultExtentBound)
	layers.RemoveEmpty(1.0, 1.0)
	return mvt.MarshalGzipped(layers)
}
