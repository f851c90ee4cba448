package domain

import (
	"github.com/paulmach/orb"
)

// Chart is an immutable snapshot of one chart's geographic records.
// It is created by decoding a chart file or by clipping another Chart and is
// shared read-only afterwards. Replace a Chart, never edit it.
type Chart struct {
	Name        string  `json:"name"`
	NativeScale int     `json:"nativeScale"`
	BoundingBox GeoRect `json:"boundingBox"`

	Coverage               []CoverageArea   `json:"coverage,omitempty"`
	LandAreas              []NamedArea      `json:"landAreas,omitempty"`
	LandRegions            []NamedPoint     `json:"landRegions,omitempty"`
	DepthAreas             []DepthArea      `json:"depthAreas,omitempty"`
	DepthContours          []LineFeature    `json:"depthContours,omitempty"`
	CoastLines             []LineFeature    `json:"coastLines,omitempty"`
	BuiltUpAreas           []NamedArea      `json:"builtUpAreas,omitempty"`
	BuiltUpPoints          []NamedPoint     `json:"builtUpPoints,omitempty"`
	Soundings              []Sounding       `json:"soundings,omitempty"`
	Beacons                []Beacon         `json:"beacons,omitempty"`
	UnderwaterRocks        []UnderwaterRock `json:"underwaterRocks,omitempty"`
	LateralBuoys           []LateralBuoy    `json:"lateralBuoys,omitempty"`
	Pontoons               []Construction   `json:"pontoons,omitempty"`
	ShorelineConstructions []Construction   `json:"shorelineConstructions,omitempty"`
	Roads                  []Road           `json:"roads,omitempty"`
}

// Validate checks the chart metadata.
func (c *Chart) Validate() error {
	if c.NativeScale <= 0 {
		return &ValidationError{
			Field:      "nativeScale",
			Value:      c.NativeScale,
			Constraint: "> 0",
			Message:    "chart scale must be positive",
		}
	}
	return c.BoundingBox.Validate()
}

// CoveragePolygons flattens all coverage areas.
func (c *Chart) CoveragePolygons() []orb.Polygon {
	var out []orb.Polygon
	for _, area := range c.Coverage {
		out = append(out, area.Polygons...)
	}
	return out
}

// ObjectCount is the number of records across all collections.
func (c *Chart) ObjectCount() int {
	return len(c.Coverage) + len(c.LandAreas) + len(c.LandRegions) +
		len(c.DepthAreas) + len(c.DepthContours) + len(c.CoastLines) +
		len(c.BuiltUpAreas) + len(c.BuiltUpPoints) + len(c.Soundings) +
		len(c.Beacons) + len(c.UnderwaterRocks) + len(c.LateralBuoys) +
		len(c.Pontoons) + len(c.ShorelineConstructions) + len(c.Roads)
}

// IsEmpty returns true when the chart holds no records.
func (c *Chart) IsEmpty() bool {
	return c.ObjectCount() == 0
}

// CoverageArea is a region where the chart has actual data.
type CoverageArea struct {
	Polygons []orb.Polygon `json:"polygons"`
}

// NamedArea is a polygonal feature with an optional name and a label point.
type NamedArea struct {
	Name     string        `json:"name,omitempty"`
	Polygons []orb.Polygon `json:"polygons"`
	Centroid orb.Point     `json:"centroid"`
}

// NamedPoint is a labelled position.
type NamedPoint struct {
	Name     string    `json:"name"`
	Position orb.Point `json:"position"`
}

// DepthArea is a polygon with its shallow depth limit in meters.
type DepthArea struct {
	Depth    float64       `json:"depth"`
	Polygons []orb.Polygon `json:"polygons"`
}

// LineFeature is a set of polylines.
type LineFeature struct {
	Lines orb.MultiLineString `json:"lines"`
}

// Sounding is a single depth measurement.
type Sounding struct {
	Position orb.Point `json:"position"`
	Depth    float64   `json:"depth"`
}

// Beacon is a fixed aid to navigation.
type Beacon struct {
	Name     string      `json:"name,omitempty"`
	Shape    BeaconShape `json:"shape"`
	Position orb.Point   `json:"position"`
}

// UnderwaterRock is a rock hazard.
type UnderwaterRock struct {
	Depth      float64          `json:"depth"`
	WaterLevel WaterLevelEffect `json:"waterLevel"`
	Position   orb.Point        `json:"position"`
}

// LateralBuoy marks a side of a navigable channel.
type LateralBuoy struct {
	Name     string          `json:"name,omitempty"`
	Category LateralCategory `json:"category"`
	Shape    BuoyShape       `json:"shape"`
	Colors   []Color         `json:"colors,omitempty"`
	Position orb.Point       `json:"position"`
}

// Construction is a pontoon or a shoreline construction. It may carry both
// areas and lines.
type Construction struct {
	Name     string              `json:"name,omitempty"`
	Polygons []orb.Polygon       `json:"polygons,omitempty"`
	Lines    orb.MultiLineString `json:"lines,omitempty"`
}

// Road is a road or street.
type Road struct {
	Name     string              `json:"name,omitempty"`
	Category RoadCategory        `json:"category"`
	Polygons []orb.Polygon       `json:"polygons,omitempty"`
	Lines    orb.MultiLineString `json:"lines,omitempty"`
}

// Centroid returns the vertex average of the outer rings.
func Centroid(polygons []orb.Polygon) orb.Point {
	var sumLon, sumLat float64
	n := 0
	for _, p := range polygons {
		if len(p) == 0 {
			continue
		}
		for _, pt := range p[0] {
			sumLon += pt[0]
			sumLat += pt[1]
			n++
		}
	}
	if n == 0 {
		return orb.Point{}
	}
	return orb.Point{sumLon / float64(n), sumLat / float64(n)}
}
