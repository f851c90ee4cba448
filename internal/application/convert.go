package application

import (
	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/geometry"
)

// coverageAvailable is the CATCOV value of an area the chart covers.
const coverageAvailable = 1

// buildChart turns decoded chart objects into a Chart. Every line and ring
// goes through simp first. Objects of classes the Chart has no collection
// for are ignored. A header without an extent gets the bounds of the
// geometry.
func buildChart(decoded *domain.DecodedChart, simp *geometry.Simplifier) *domain.Chart {
	c := &domain.Chart{
		Name:        decoded.Header.Name,
		NativeScale: decoded.Header.NativeScale,
		BoundingBox: decoded.Header.Extent,
	}

	for i := range decoded.Objects {
		obj := &decoded.Objects[i]
		polygons := simp.Polygons(obj.Polygons)
		lines := simp.Lines(obj.Lines)
		name, _ := obj.Attr(domain.AttrObjectName)

		switch obj.Class {
		case domain.ClassCoverage:
			if cat, ok := obj.AttrInt(domain.AttrCategoryOfCoverage); ok && cat == coverageAvailable && len(polygons) > 0 {
				c.Coverage = append(c.Coverage, domain.CoverageArea{Polygons: polygons})
			}

		case domain.ClassLandArea:
			if len(polygons) > 0 {
				c.LandAreas = append(c.LandAreas, domain.NamedArea{
					Name:     name,
					Polygons: polygons,
					Centroid: domain.Centroid(polygons),
				})
			}

		case domain.ClassLandRegion:
			if obj.Point != nil && name != "" {
				c.LandRegions = append(c.LandRegions, domain.NamedPoint{Name: name, Position: *obj.Point})
			}

		case domain.ClassDepthArea:
			if len(polygons) > 0 {
				depth, _ := obj.AttrFloat(domain.AttrDepthValue1)
				c.DepthAreas = append(c.DepthAreas, domain.DepthArea{Depth: depth, Polygons: polygons})
			}

		case domain.ClassDepthContour:
			if len(lines) > 0 {
				c.DepthContours = append(c.DepthContours, domain.LineFeature{Lines: lines})
			}

		case domain.ClassCoastline:
			if len(lines) > 0 {
				c.CoastLines = append(c.CoastLines, domain.LineFeature{Lines: lines})
			}

		case domain.ClassBuiltUpArea:
			// Built-up areas come either as areas or as points.
			if len(polygons) > 0 {
				c.BuiltUpAreas = append(c.BuiltUpAreas, domain.NamedArea{
					Name:     name,
					Polygons: polygons,
					Centroid: domain.Centroid(polygons),
				})
			} else if obj.Point != nil && name != "" {
				c.BuiltUpPoints = append(c.BuiltUpPoints, domain.NamedPoint{Name: name, Position: *obj.Point})
			}

		case domain.ClassSounding:
			c.Soundings = append(c.Soundings, obj.Soundings...)

		case domain.ClassBeaconCardinal, domain.ClassBeaconIsolatedDanger, domain.ClassBeaconLateral,
			domain.ClassBeaconSafeWater, domain.ClassBeaconSpecialPurpose:
			if b, ok := beacon(obj, name); ok {
				c.Beacons = append(c.Beacons, b)
			}

		case domain.ClassUnderwaterRock:
			if r, ok := underwaterRock(obj); ok {
				c.UnderwaterRocks = append(c.UnderwaterRocks, r)
			}

		case domain.ClassBuoyLateral:
			if b, ok := lateralBuoy(obj, name); ok {
				c.LateralBuoys = append(c.LateralBuoys, b)
			}

		case domain.ClassPontoon:
			if len(polygons) > 0 || len(lines) > 0 {
				c.Pontoons = append(c.Pontoons, domain.Construction{Name: name, Polygons: polygons, Lines: lines})
			}

		case domain.ClassShorelineConstruction:
			if len(polygons) > 0 || len(lines) > 0 {
				c.ShorelineConstructions = append(c.ShorelineConstructions,
					domain.Construction{Name: name, Polygons: polygons, Lines: lines})
			}

		case domain.ClassRoad:
			if len(polygons) > 0 || len(lines) > 0 {
				cat, _ := obj.AttrInt(domain.AttrCategoryOfRoad)
				c.Roads = append(c.Roads, domain.Road{
					Name:     name,
					Category: domain.RoadCategory(enumCode(cat, int(domain.RoadCrossing))),
					Polygons: polygons,
					Lines:    lines,
				})
			}
		}
	}

	if c.BoundingBox.IsZero() {
		c.BoundingBox = geometry.Bounds(c)
	}
	return c
}

func beacon(obj *domain.ChartObject, name string) (domain.Beacon, bool) {
	shape, ok := obj.AttrInt(domain.AttrBeaconShape)
	if !ok || obj.Point == nil {
		return domain.Beacon{}, false
	}
	return domain.Beacon{
		Name:     name,
		Shape:    domain.BeaconShape(enumCode(shape, int(domain.BeaconBuoyant))),
		Position: *obj.Point,
	}, true
}

func underwaterRock(obj *domain.ChartObject) (domain.UnderwaterRock, bool) {
	level, ok := obj.AttrInt(domain.AttrWaterLevel)
	if !ok || obj.Point == nil {
		return domain.UnderwaterRock{}, false
	}
	depth, ok := obj.AttrFloat(domain.AttrValueOfSounding)
	if !ok {
		return domain.UnderwaterRock{}, false
	}
	return domain.UnderwaterRock{
		Depth:      depth,
		WaterLevel: domain.WaterLevelEffect(enumCode(level, int(domain.Floating))),
		Position:   *obj.Point,
	}, true
}

func lateralBuoy(obj *domain.ChartObject, name string) (domain.LateralBuoy, bool) {
	if obj.Point == nil {
		return domain.LateralBuoy{}, false
	}
	category, ok := obj.AttrInt(domain.AttrCategoryOfLateral)
	if !ok {
		return domain.LateralBuoy{}, false
	}
	shape, _ := obj.AttrInt(domain.AttrBuoyShape)

	var colors []domain.Color
	for _, code := range obj.AttrInts(domain.AttrColour) {
		colors = append(colors, domain.Color(enumCode(code, int(domain.ColorPink))))
	}

	return domain.LateralBuoy{
		Name:     name,
		Category: domain.LateralCategory(enumCode(category, int(domain.LateralChannelToPort))),
		Shape:    domain.BuoyShape(enumCode(shape, int(domain.BuoyIce))),
		Colors:   colors,
		Position: *obj.Point,
	}, true
}

// enumCode maps an S-57 enumeration value onto a domain enum whose values
// follow the S-57 codes. Codes outside [1, last] become 0, the unknown value.
func enumCode(code, last int) uint8 {
	if code < 1 || code > last {
		return 0
	}
	return uint8(code)
}
