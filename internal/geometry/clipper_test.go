package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/jobrunner/charttiler/internal/domain"
)

func testConfig() ClipConfig {
	box := domain.GeoRect{Top: 60, Bottom: 59, Left: 18, Right: 19}
	return ClipConfig{
		Box:                 box,
		ChartBoundingBox:    domain.GeoRect{Top: 61, Bottom: 58, Left: 17, Right: 20},
		LatitudeMargin:      0.01,
		LongitudeMargin:     0.01,
		LatitudeResolution:  0.0005,
		LongitudeResolution: 0.0005,
	}
}

func ring(points ...orb.Point) orb.Ring {
	r := orb.Ring(points)
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

func TestClipPolygonInsideBox(t *testing.T) {
	cfg := testConfig()
	input := orb.Polygon{ring(
		orb.Point{18.2, 59.2}, orb.Point{18.8, 59.2}, orb.Point{18.7, 59.8}, orb.Point{18.3, 59.7},
	)}

	got := ClipPolygons([]orb.Polygon{input}, cfg)
	if len(got) != 1 {
		t.Fatalf("len(ClipPolygons()) = %d, want 1", len(got))
	}
	if len(got[0][0]) != len(input[0]) {
		t.Errorf("vertex count = %d, want %d", len(got[0][0]), len(input[0]))
	}

	wantArea := math.Abs(planar.Area(input))
	gotArea := math.Abs(planar.Area(got[0]))
	// Each grid cell is about resolution/2 wide.
	tolerance := 4 * cfg.LongitudeResolution
	if math.Abs(gotArea-wantArea) > tolerance {
		t.Errorf("area = %v, want %v (tolerance %v)", gotArea, wantArea, tolerance)
	}
}

func TestClipPolygonOutsideBox(t *testing.T) {
	cfg := testConfig()
	input := orb.Polygon{ring(
		orb.Point{20, 59.2}, orb.Point{20.5, 59.2}, orb.Point{20.5, 59.8},
	)}

	if got := ClipPolygons([]orb.Polygon{input}, cfg); len(got) != 0 {
		t.Errorf("ClipPolygons() = %v, want empty", got)
	}
}

func TestClipPolygonEmptyAndDegenerate(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name  string
		input []orb.Polygon
	}{
		{"nil", nil},
		{"empty polygon", []orb.Polygon{{}}},
		{"repeated point", []orb.Polygon{{ring(orb.Point{18.5, 59.5}, orb.Point{18.5, 59.5}, orb.Point{18.5, 59.5})}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClipPolygons(tt.input, cfg); len(got) != 0 {
				t.Errorf("ClipPolygons() = %v, want empty", got)
			}
		})
	}
}

func TestClipPolygonCrossingBox(t *testing.T) {
	cfg := testConfig()
	input := orb.Polygon{ring(
		orb.Point{17.5, 58.5}, orb.Point{19.5, 58.5}, orb.Point{19.5, 60.5}, orb.Point{17.5, 60.5},
	)}

	got := ClipPolygons([]orb.Polygon{input}, cfg)
	if len(got) != 1 {
		t.Fatalf("len(ClipPolygons()) = %d, want 1", len(got))
	}

	bound := got[0].Bound()
	clipRect := cfg.ClipRect()
	eps := 1e-6
	if bound.Min[0] < clipRect.Left-eps || bound.Max[0] > clipRect.Right+eps ||
		bound.Min[1] < clipRect.Bottom-eps || bound.Max[1] > clipRect.Top+eps {
		t.Errorf("clipped bound %v exceeds clip rect %v", bound, clipRect)
	}
}

func TestClipPolygonHoles(t *testing.T) {
	cfg := testConfig()
	input := orb.Polygon{
		ring(orb.Point{17.5, 58.5}, orb.Point{19.5, 58.5}, orb.Point{19.5, 60.5}, orb.Point{17.5, 60.5}),
		ring(orb.Point{18.4, 59.4}, orb.Point{18.6, 59.4}, orb.Point{18.6, 59.6}, orb.Point{18.4, 59.6}),
		ring(orb.Point{25, 25}, orb.Point{26, 25}, orb.Point{26, 26}),
	}

	got := ClipPolygons([]orb.Polygon{input}, cfg)
	if len(got) != 1 {
		t.Fatalf("len(ClipPolygons()) = %d, want 1", len(got))
	}
	if len(got[0]) != 2 {
		t.Errorf("rings = %d, want outer plus one hole", len(got[0]))
	}
}

func TestClipPolygonMoveOutEdges(t *testing.T) {
	cfg := testConfig()
	// The chart ends exactly at the tile's right edge.
	cfg.ChartBoundingBox = domain.GeoRect{Top: 61, Bottom: 58, Left: 17, Right: 19}
	cfg.MoveOutEdges = true

	input := orb.Polygon{ring(
		orb.Point{18.2, 59.2}, orb.Point{19, 59.2}, orb.Point{19, 59.8}, orb.Point{18.2, 59.8},
	)}

	got := ClipPolygons([]orb.Polygon{input}, cfg)
	if len(got) != 1 {
		t.Fatalf("len(ClipPolygons()) = %d, want a single polygon", len(got))
	}
	outer := got[0][0]
	if outer[0] != outer[len(outer)-1] {
		t.Error("outer ring is not closed")
	}

	pushed := false
	for _, pt := range outer {
		if pt[0] > cfg.ChartBoundingBox.Right {
			pushed = true
		}
		if pt[0] > cfg.ChartBoundingBox.Right+2*cfg.LongitudeMargin+1e-9 {
			t.Errorf("vertex %v pushed past the extension limit", pt)
		}
	}
	if !pushed {
		t.Error("edge vertices were not moved out")
	}
}

func TestInflateKeepsInteriorRing(t *testing.T) {
	cfg := testConfig()
	cfg.MoveOutEdges = true
	r := orb.Ring{{18.2, 59.2}, {18.8, 59.2}, {18.8, 59.8}, {18.2, 59.8}}

	got := inflateAtChartEdges(r, cfg)
	if len(got) != len(r) {
		t.Fatalf("len = %d, want %d", len(got), len(r))
	}
	for i := range r {
		if got[i] != r[i] {
			t.Errorf("vertex %d moved from %v to %v", i, r[i], got[i])
		}
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want int
	}{
		{"below", -1, -1},
		{"at min margin", 0.1, -1},
		{"inside", 5, 0},
		{"at max margin", 9.9, 1},
		{"above", 11, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inRange(tt.v, 0, 10, 0.1); got != tt.want {
				t.Errorf("inRange(%v) = %d, want %d", tt.v, got, tt.want)
			}
		})
	}
}

func TestClipLines(t *testing.T) {
	cfg := testConfig()
	lines := orb.MultiLineString{
		{{17, 59.5}, {20, 59.5}},
		{{25, 25}, {26, 26}},
		{{18.5, 59.5}},
	}

	got := ClipLines(lines, cfg)
	if len(got) != 1 {
		t.Fatalf("len(ClipLines()) = %d, want 1", len(got))
	}
	clipRect := cfg.ClipRect()
	for _, pt := range got[0] {
		if pt[0] < clipRect.Left-1e-9 || pt[0] > clipRect.Right+1e-9 {
			t.Errorf("point %v outside clip rect", pt)
		}
	}
}

func TestKeepPoint(t *testing.T) {
	cfg := testConfig()
	if !KeepPoint(orb.Point{18.5, 59.5}, cfg) {
		t.Error("point inside box should be kept")
	}
	if KeepPoint(orb.Point{19.005, 59.5}, cfg) {
		t.Error("point in margin should be dropped")
	}
}

func TestClipChart(t *testing.T) {
	cfg := testConfig()
	inside := orb.Polygon{ring(orb.Point{18.2, 59.2}, orb.Point{18.8, 59.2}, orb.Point{18.8, 59.8})}
	outside := orb.Polygon{ring(orb.Point{30, 30}, orb.Point{31, 30}, orb.Point{31, 31})}

	chart := &domain.Chart{
		Name:        "test",
		NativeScale: 50000,
		BoundingBox: domain.GeoRect{Top: 61, Bottom: 58, Left: 17, Right: 20},
		Coverage:    []domain.CoverageArea{{Polygons: []orb.Polygon{inside}}},
		LandAreas: []domain.NamedArea{
			{Name: "in", Polygons: []orb.Polygon{inside}},
			{Name: "out", Polygons: []orb.Polygon{outside}},
		},
		Soundings: []domain.Sounding{
			{Position: orb.Point{18.5, 59.5}, Depth: 3},
			{Position: orb.Point{30, 30}, Depth: 4},
		},
		CoastLines: []domain.LineFeature{{Lines: orb.MultiLineString{{{17, 59.5}, {20, 59.5}}}}},
		Roads: []domain.Road{
			{Name: "gone", Category: domain.RoadTrack, Lines: orb.MultiLineString{{{30, 30}, {31, 31}}}},
		},
	}

	got := ClipChart(chart, cfg)

	if got.Name != chart.Name || got.NativeScale != chart.NativeScale || got.BoundingBox != chart.BoundingBox {
		t.Errorf("metadata not preserved: %+v", got)
	}
	if len(got.Coverage) != 1 {
		t.Errorf("len(Coverage) = %d, want 1", len(got.Coverage))
	}
	if len(got.LandAreas) != 1 || got.LandAreas[0].Name != "in" {
		t.Errorf("LandAreas = %+v, want only the inside area", got.LandAreas)
	}
	if len(got.Soundings) != 1 || got.Soundings[0].Depth != 3 {
		t.Errorf("Soundings = %+v", got.Soundings)
	}
	if len(got.CoastLines) != 1 {
		t.Errorf("len(CoastLines) = %d, want 1", len(got.CoastLines))
	}
	if len(got.Roads) != 0 {
		t.Errorf("len(Roads) = %d, want 0", len(got.Roads))
	}
	if len(chart.LandAreas) != 2 {
		t.Error("source chart was modified")
	}
}

func TestBounds(t *testing.T) {
	chart := &domain.Chart{
		LandAreas:  []domain.NamedArea{{Polygons: []orb.Polygon{{ring(orb.Point{1, 1}, orb.Point{2, 1}, orb.Point{2, 3})}}}},
		CoastLines: []domain.LineFeature{{Lines: orb.MultiLineString{{{-1, 0}, {0, 5}}}}},
	}
	want := domain.GeoRect{Top: 5, Bottom: 0, Left: -1, Right: 2}
	if got := Bounds(chart); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}
	if got := Bounds(&domain.Chart{}); !got.IsZero() {
		t.Errorf("Bounds(empty) = %v, want zero", got)
	}
}
