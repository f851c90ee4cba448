// Package geometry implements polygon clipping, coverage accounting and line
// simplification for chart fragments.
package geometry

import (
	clipper "github.com/ctessum/go.clipper"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"

	"github.com/jobrunner/charttiler/internal/domain"
)

// ClipConfig describes the window a chart is clipped to.
type ClipConfig struct {
	// Box is the tile rectangle.
	Box domain.GeoRect
	// ChartBoundingBox is the extent of the chart being clipped. Edge
	// extension works against it, not against Box.
	ChartBoundingBox domain.GeoRect

	LatitudeMargin      float64
	LongitudeMargin     float64
	LatitudeResolution  float64
	LongitudeResolution float64

	MoveOutEdges bool
}

// ClipRect is Box padded by the margins.
func (c ClipConfig) ClipRect() domain.GeoRect {
	return c.Box.Grow(c.LatitudeMargin, c.LongitudeMargin)
}

func (c ClipConfig) valid() bool {
	return c.LatitudeResolution > 0 && c.LongitudeResolution > 0 && !c.Box.IsZero()
}

// grid maps geographic positions inside roi onto an integer lattice of
// xRes by yRes cells.
type grid struct {
	roi  domain.GeoRect
	xRes float64
	yRes float64
}

func newGrid(cfg ClipConfig) grid {
	xRes := int(cfg.Box.Width()/cfg.LongitudeResolution) * 2
	yRes := int(cfg.Box.Height()/cfg.LatitudeResolution) * 2
	return grid{roi: cfg.ClipRect(), xRes: float64(xRes), yRes: float64(yRes)}
}

func (g grid) usable() bool {
	return g.xRes > 0 && g.yRes > 0 && g.roi.Width() > 0 && g.roi.Height() > 0
}

func (g grid) toInt(pt orb.Point) clipper.IntPoint {
	x := (pt[0] - g.roi.Left) / g.roi.Width() * g.xRes
	y := (pt[1] - g.roi.Bottom) / g.roi.Height() * g.yRes
	return clipper.IntPoint{X: clipper.CInt(x), Y: clipper.CInt(y)}
}

func (g grid) toPoint(p *clipper.IntPoint) orb.Point {
	lon := float64(p.X)/g.xRes*g.roi.Width() + g.roi.Left
	lat := float64(p.Y)/g.yRes*g.roi.Height() + g.roi.Bottom
	return orb.Point{lon, lat}
}

// path converts a ring to an open integer path, dropping repeated
// consecutive vertices and the closing vertex.
func (g grid) path(r orb.Ring) clipper.Path {
	out := make(clipper.Path, 0, len(r))
	for _, pt := range r {
		ip := g.toInt(pt)
		if n := len(out); n > 0 && *out[n-1] == ip {
			continue
		}
		out = append(out, &ip)
	}
	if n := len(out); n > 1 && *out[0] == *out[n-1] {
		out = out[:n-1]
	}
	return out
}

// ring converts an integer path back to an open ring.
func (g grid) ring(p clipper.Path) orb.Ring {
	out := make(orb.Ring, 0, len(p)+1)
	for _, ip := range p {
		out = append(out, g.toPoint(ip))
	}
	return out
}

func (g grid) rect() clipper.Path {
	x, y := clipper.CInt(g.xRes), clipper.CInt(g.yRes)
	return clipper.Path{
		{X: 0, Y: 0},
		{X: 0, Y: y},
		{X: x, Y: y},
		{X: x, Y: 0},
	}
}

// ClipPolygons clips polygons to the padded window of cfg. Each main ring is
// intersected with the window using the even-odd rule, and holes are
// intersected with every resulting ring.
func ClipPolygons(polygons []orb.Polygon, cfg ClipConfig) []orb.Polygon {
	if !cfg.valid() {
		return nil
	}
	g := newGrid(cfg)
	if !g.usable() {
		return nil
	}

	var out []orb.Polygon
	for _, p := range polygons {
		out = append(out, clipPolygon(p, cfg, g)...)
	}
	return out
}

func clipPolygon(p orb.Polygon, cfg ClipConfig, g grid) []orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	main := g.path(p[0])
	if len(main) < 3 {
		return nil
	}

	solution := intersect(clipper.Paths{main}, clipper.Paths{g.rect()})
	if len(solution) == 0 {
		return nil
	}

	var holes clipper.Paths
	for _, h := range p[1:] {
		if hp := g.path(h); len(hp) >= 3 {
			holes = append(holes, hp)
		}
	}

	out := make([]orb.Polygon, 0, len(solution))
	for _, area := range solution {
		ring := g.ring(area)
		if cfg.MoveOutEdges {
			ring = inflateAtChartEdges(ring, cfg)
		}
		polygon := orb.Polygon{closeRing(ring)}

		if len(holes) > 0 {
			for _, h := range intersect(holes, clipper.Paths{area}) {
				polygon = append(polygon, closeRing(g.ring(h)))
			}
		}
		out = append(out, polygon)
	}
	return out
}

func intersect(subject, window clipper.Paths) clipper.Paths {
	c := clipper.NewClipper(clipper.IoPreserveCollinear)
	c.AddPaths(subject, clipper.PtSubject, true)
	c.AddPaths(window, clipper.PtClip, true)
	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftEvenOdd, clipper.PftEvenOdd)
	if !ok {
		return nil
	}
	return solution
}

// inflateAtChartEdges pushes vertices lying within one resolution step of the
// chart's own bounding box out beyond the clip margin. The last inside vertex
// before and the first inside vertex after such a run are repeated so the
// ring keeps its shape along the interior.
func inflateAtChartEdges(ring orb.Ring, cfg ClipConfig) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	bbox := cfg.ChartBoundingBox

	state := func(pt orb.Point) (int, int) {
		return inRange(pt[0], bbox.Left, bbox.Right, cfg.LongitudeResolution),
			inRange(pt[1], bbox.Bottom, bbox.Top, cfg.LatitudeResolution)
	}

	previous := ring[len(ring)-1]
	lonState, latState := state(previous)
	outside := lonState != 0 || latState != 0

	out := make(orb.Ring, 0, len(ring)+4)
	for _, pt := range ring {
		moved := pt
		newLon, newLat := state(pt)
		newOutside := newLon != 0 || newLat != 0

		if newOutside && !outside {
			out = append(out, pt)
		}

		switch newLon {
		case 1:
			moved[0] = bbox.Right + 2*cfg.LongitudeMargin
		case -1:
			moved[0] = bbox.Left - 2*cfg.LongitudeMargin
		}
		switch newLat {
		case 1:
			moved[1] = bbox.Top + 2*cfg.LatitudeMargin
		case -1:
			moved[1] = bbox.Bottom - 2*cfg.LatitudeMargin
		}

		if !newOutside && outside {
			out = append(out, previous)
		}
		outside = newOutside

		out = append(out, moved)
		previous = pt
	}
	return out
}

// inRange classifies v against [min, max] shrunk by margin: -1 near or below
// min, 1 near or above max, 0 inside.
func inRange(v, min, max, margin float64) int {
	switch {
	case v <= min+margin:
		return -1
	case v >= max-margin:
		return 1
	default:
		return 0
	}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// ClipLines cuts polylines to the padded window of cfg.
func ClipLines(lines orb.MultiLineString, cfg ClipConfig) orb.MultiLineString {
	bound := cfg.ClipRect().Bound()

	var out orb.MultiLineString
	for _, ls := range lines {
		if len(ls) < 2 {
			continue
		}
		for _, part := range clip.LineString(bound, ls) {
			if len(part) >= 2 {
				out = append(out, part)
			}
		}
	}
	return out
}

// KeepPoint reports whether a point feature belongs to the tile.
func KeepPoint(pt orb.Point, cfg ClipConfig) bool {
	return cfg.Box.Contains(pt[1], pt[0])
}
