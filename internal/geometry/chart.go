package geometry

import (
	"github.com/paulmach/orb"

	"github.com/jobrunner/charttiler/internal/domain"
)

// resolutionBoost refines the clip grid beyond the render resolution.
const resolutionBoost = 10

// ClipChart builds a new Chart holding the parts of c that fall inside the
// window of cfg. Items whose geometry is clipped away entirely are dropped.
// The source chart is not modified.
func ClipChart(c *domain.Chart, cfg ClipConfig) *domain.Chart {
	cfg.LatitudeResolution /= resolutionBoost
	cfg.LongitudeResolution /= resolutionBoost
	cfg.ChartBoundingBox = c.BoundingBox

	out := &domain.Chart{
		Name:        c.Name,
		NativeScale: c.NativeScale,
		BoundingBox: c.BoundingBox,
	}

	for _, item := range c.Coverage {
		if polygons := ClipPolygons(item.Polygons, cfg); len(polygons) > 0 {
			out.Coverage = append(out.Coverage, domain.CoverageArea{Polygons: polygons})
		}
	}
	out.LandAreas = clipNamedAreas(c.LandAreas, cfg)
	out.BuiltUpAreas = clipNamedAreas(c.BuiltUpAreas, cfg)
	for _, item := range c.DepthAreas {
		if polygons := ClipPolygons(item.Polygons, cfg); len(polygons) > 0 {
			out.DepthAreas = append(out.DepthAreas, domain.DepthArea{Depth: item.Depth, Polygons: polygons})
		}
	}

	out.DepthContours = clipLineFeatures(c.DepthContours, cfg)
	out.CoastLines = clipLineFeatures(c.CoastLines, cfg)

	for _, item := range c.LandRegions {
		if KeepPoint(item.Position, cfg) {
			out.LandRegions = append(out.LandRegions, item)
		}
	}
	for _, item := range c.BuiltUpPoints {
		if KeepPoint(item.Position, cfg) {
			out.BuiltUpPoints = append(out.BuiltUpPoints, item)
		}
	}
	for _, item := range c.Soundings {
		if KeepPoint(item.Position, cfg) {
			out.Soundings = append(out.Soundings, item)
		}
	}
	for _, item := range c.Beacons {
		if KeepPoint(item.Position, cfg) {
			out.Beacons = append(out.Beacons, item)
		}
	}
	for _, item := range c.UnderwaterRocks {
		if KeepPoint(item.Position, cfg) {
			out.UnderwaterRocks = append(out.UnderwaterRocks, item)
		}
	}
	for _, item := range c.LateralBuoys {
		if KeepPoint(item.Position, cfg) {
			out.LateralBuoys = append(out.LateralBuoys, item)
		}
	}

	out.Pontoons = clipConstructions(c.Pontoons, cfg)
	out.ShorelineConstructions = clipConstructions(c.ShorelineConstructions, cfg)

	for _, item := range c.Roads {
		polygons := ClipPolygons(item.Polygons, cfg)
		lines := ClipLines(item.Lines, cfg)
		if len(polygons) > 0 || len(lines) > 0 {
			out.Roads = append(out.Roads, domain.Road{
				Name:     item.Name,
				Category: item.Category,
				Polygons: polygons,
				Lines:    lines,
			})
		}
	}

	return out
}

func clipNamedAreas(items []domain.NamedArea, cfg ClipConfig) []domain.NamedArea {
	var out []domain.NamedArea
	for _, item := range items {
		if polygons := ClipPolygons(item.Polygons, cfg); len(polygons) > 0 {
			out = append(out, domain.NamedArea{Name: item.Name, Polygons: polygons, Centroid: item.Centroid})
		}
	}
	return out
}

func clipLineFeatures(items []domain.LineFeature, cfg ClipConfig) []domain.LineFeature {
	var out []domain.LineFeature
	for _, item := range items {
		if lines := ClipLines(item.Lines, cfg); len(lines) > 0 {
			out = append(out, domain.LineFeature{Lines: lines})
		}
	}
	return out
}

func clipConstructions(items []domain.Construction, cfg ClipConfig) []domain.Construction {
	var out []domain.Construction
	for _, item := range items {
		polygons := ClipPolygons(item.Polygons, cfg)
		lines := ClipLines(item.Lines, cfg)
		if len(polygons) > 0 || len(lines) > 0 {
			out = append(out, domain.Construction{Name: item.Name, Polygons: polygons, Lines: lines})
		}
	}
	return out
}

// Bounds returns the bounding rectangle of all polygon and line geometry in
// the chart, or the zero rectangle.
func Bounds(c *domain.Chart) domain.GeoRect {
	var b orb.Bound
	first := true
	extend := func(g orb.Geometry) {
		if g == nil {
			return
		}
		gb := g.Bound()
		if first {
			b = gb
			first = false
			return
		}
		b = b.Union(gb)
	}
	for _, item := range c.Coverage {
		for _, p := range item.Polygons {
			extend(p)
		}
	}
	for _, item := range c.LandAreas {
		for _, p := range item.Polygons {
			extend(p)
		}
	}
	for _, item := range c.DepthAreas {
		for _, p := range item.Polygons {
			extend(p)
		}
	}
	for _, item := range c.CoastLines {
		extend(item.Lines)
	}
	if first {
		return domain.GeoRect{}
	}
	return domain.RectFromBound(b)
}
