package geometry

import (
	clipper "github.com/ctessum/go.clipper"
	"github.com/paulmach/orb"

	"github.com/jobrunner/charttiler/internal/domain"
)

// coverageGridSize is the lattice resolution of the tile's local space.
const coverageGridSize = 1 << 20

// Coverage accumulates the union of coverage polygons over one tile and
// reports the fraction of the tile they cover. It is not safe for
// concurrent use.
type Coverage struct {
	rect  domain.GeoRect
	union clipper.Paths
}

// NewCoverage creates an empty accumulator for rect.
func NewCoverage(rect domain.GeoRect) *Coverage {
	return &Coverage{rect: rect}
}

// Add unions polygons into the covered area. Parts outside the tile are
// ignored.
func (c *Coverage) Add(polygons []orb.Polygon) {
	if c.rect.Width() <= 0 || c.rect.Height() <= 0 {
		return
	}
	tile := clipper.Paths{c.tilePath()}

	for _, p := range polygons {
		var rings clipper.Paths
		for _, r := range p {
			if path := c.toPath(r); len(path) >= 3 {
				rings = append(rings, path)
			}
		}
		if len(rings) == 0 {
			continue
		}

		inside := intersect(rings, tile)
		if len(inside) == 0 {
			continue
		}
		c.union = union(c.union, inside)
	}
}

// Ratio returns the covered fraction of the tile in [0, 1].
func (c *Coverage) Ratio() float64 {
	var area float64
	for _, path := range c.union {
		area += signedArea(path)
	}
	if area < 0 {
		area = -area
	}
	ratio := area / (coverageGridSize * coverageGridSize)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// union merges added into subject. Both sides use the even-odd rule on their
// own paths, so a polygon identical to the current union leaves it intact.
func union(subject, added clipper.Paths) clipper.Paths {
	c := clipper.NewClipper(clipper.IoPreserveCollinear)
	if len(subject) == 0 {
		c.AddPaths(added, clipper.PtSubject, true)
	} else {
		c.AddPaths(subject, clipper.PtSubject, true)
		c.AddPaths(added, clipper.PtClip, true)
	}
	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftEvenOdd, clipper.PftEvenOdd)
	if !ok {
		return subject
	}
	return solution
}

func (c *Coverage) toPath(r orb.Ring) clipper.Path {
	out := make(clipper.Path, 0, len(r))
	for _, pt := range r {
		ip := clipper.IntPoint{
			X: clipper.CInt((pt[0] - c.rect.Left) / c.rect.Width() * coverageGridSize),
			Y: clipper.CInt((pt[1] - c.rect.Bottom) / c.rect.Height() * coverageGridSize),
		}
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

func (c *Coverage) tilePath() clipper.Path {
	return clipper.Path{
		{X: 0, Y: 0},
		{X: coverageGridSize, Y: 0},
		{X: coverageGridSize, Y: coverageGridSize},
		{X: 0, Y: coverageGridSize},
	}
}

// signedArea sums the signed areas of the fan triangles rooted at the first
// vertex. Holes come out of the clipper with opposite orientation and
// subtract.
func signedArea(p clipper.Path) float64 {
	if len(p) < 3 {
		return 0
	}
	origin := p[0]
	var twice float64
	for i := 1; i+1 < len(p); i++ {
		a, b := p[i], p[i+1]
		twice += float64(a.X-origin.X)*float64(b.Y-origin.Y) -
			float64(b.X-origin.X)*float64(a.Y-origin.Y)
	}
	return twice / 2
}
