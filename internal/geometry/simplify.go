package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Simplifier decimates vertex chains with Douglas-Peucker.
type Simplifier struct {
	dp *simplify.DouglasPeuckerSimplifier
}

// NewSimplifier creates a simplifier with the given tolerance in degrees.
// A non-positive tolerance disables simplification.
func NewSimplifier(epsilon float64) *Simplifier {
	if epsilon <= 0 {
		return &Simplifier{}
	}
	return &Simplifier{dp: simplify.DouglasPeucker(epsilon)}
}

// Lines simplifies every polyline. Inputs are not modified.
func (s *Simplifier) Lines(lines orb.MultiLineString) orb.MultiLineString {
	if s.dp == nil || len(lines) == 0 {
		return lines
	}
	out := make(orb.MultiLineString, 0, len(lines))
	for _, ls := range lines {
		if len(ls) < 3 {
			out = append(out, ls)
			continue
		}
		out = append(out, s.dp.LineString(ls.Clone()))
	}
	return out
}

// Polygons simplifies every ring. A polygon whose outer ring collapses is
// dropped, a collapsed hole is removed. Inputs are not modified.
func (s *Simplifier) Polygons(polygons []orb.Polygon) []orb.Polygon {
	if s.dp == nil || len(polygons) == 0 {
		return polygons
	}
	out := make([]orb.Polygon, 0, len(polygons))
	for _, p := range polygons {
		if len(p) == 0 {
			continue
		}
		outer := s.ring(p[0])
		if len(outer) < 4 {
			continue
		}
		simplified := orb.Polygon{outer}
		for _, hole := range p[1:] {
			if h := s.ring(hole); len(h) >= 4 {
				simplified = append(simplified, h)
			}
		}
		out = append(out, simplified)
	}
	return out
}

func (s *Simplifier) ring(r orb.Ring) orb.Ring {
	if len(r) < 5 {
		return r
	}
	return s.dp.Ring(r.Clone())
}
