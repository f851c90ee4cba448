package s57

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/jobrunner/charttiler/internal/domain"
)

// objects resolves every feature's geometry. Features without usable
// geometry are dropped.
func (ds *dataset) objects() []domain.ChartObject {
	out := make([]domain.ChartObject, 0, len(ds.features))
	for _, f := range ds.features {
		obj := domain.ChartObject{Class: f.class, Attributes: f.attributes}

		switch f.prim {
		case primPoint:
			ds.resolvePoints(f, &obj)
			if obj.Point == nil && len(obj.Soundings) == 0 {
				continue
			}
		case primLine:
			obj.Lines = ds.resolveLines(f)
			if len(obj.Lines) == 0 {
				continue
			}
		case primArea:
			obj.Polygons = ds.resolvePolygons(f)
			if len(obj.Polygons) == 0 {
				continue
			}
		default:
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (ds *dataset) node(rcid uint32) *vector {
	for _, rcnm := range []int{rcnmIsolatedNode, rcnmConnectedNode} {
		if v, ok := ds.vectors[vectorKey{rcnm: rcnm, rcid: rcid}]; ok && len(v.coords) > 0 {
			return v
		}
	}
	return nil
}

// resolvePoints fills either the point or, for SG3D nodes, the soundings.
func (ds *dataset) resolvePoints(f *feature, obj *domain.ChartObject) {
	for _, ref := range f.spatial {
		v := ds.node(ref.rcid)
		if v == nil {
			continue
		}
		if len(v.depths) > 0 {
			for i, c := range v.coords {
				obj.Soundings = append(obj.Soundings, domain.Sounding{
					Position: orb.Point{c[0], c[1]},
					Depth:    v.depths[i],
				})
			}
			continue
		}
		if obj.Point == nil {
			pt := orb.Point{v.coords[0][0], v.coords[0][1]}
			obj.Point = &pt
		}
	}
}

// edgeCoords returns start node + shape points + end node, reversed for
// reverse orientation.
func (ds *dataset) edgeCoords(rcid uint32, orientation int) []orb.Point {
	e, ok := ds.vectors[vectorKey{rcnm: rcnmEdge, rcid: rcid}]
	if !ok {
		return nil
	}

	var start, end *vector
	for _, p := range e.pointers {
		if p.rcnm != rcnmIsolatedNode && p.rcnm != rcnmConnectedNode {
			continue
		}
		if start == nil {
			start = ds.node(p.rcid)
		} else if end == nil {
			end = ds.node(p.rcid)
		}
	}

	pts := make([]orb.Point, 0, len(e.coords)+2)
	if start != nil {
		pts = append(pts, orb.Point{start.coords[0][0], start.coords[0][1]})
	}
	for _, c := range e.coords {
		pts = append(pts, orb.Point{c[0], c[1]})
	}
	if end != nil {
		pts = append(pts, orb.Point{end.coords[0][0], end.coords[0][1]})
	}

	if orientation == orientationReverse {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// edgeRefs expands face pointers into their edges.
func (ds *dataset) edgeRefs(f *feature) []pointer {
	var refs []pointer
	for _, ref := range f.spatial {
		switch ref.rcnm {
		case rcnmEdge:
			refs = append(refs, ref)
		case rcnmFace:
			face, ok := ds.vectors[vectorKey{rcnm: rcnmFace, rcid: ref.rcid}]
			if !ok {
				continue
			}
			for _, p := range face.pointers {
				if p.rcnm == rcnmEdge {
					refs = append(refs, p)
				}
			}
		}
	}
	return refs
}

// resolveLines chains consecutive edges sharing an end point into one
// polyline.
func (ds *dataset) resolveLines(f *feature) orb.MultiLineString {
	var out orb.MultiLineString
	var current orb.LineString

	for _, ref := range ds.edgeRefs(f) {
		pts := ds.edgeCoords(ref.rcid, ref.orientation)
		if len(pts) == 0 {
			continue
		}
		if n := len(current); n > 0 && current[n-1] == pts[0] {
			current = append(current, pts[1:]...)
			continue
		}
		if len(current) >= 2 {
			out = append(out, current)
		}
		current = append(orb.LineString(nil), pts...)
	}
	if len(current) >= 2 {
		out = append(out, current)
	}
	return out
}

type usageRing struct {
	ring     orb.Ring
	interior bool
}

// resolvePolygons builds rings from the edges in pointer order. A ring ends
// when it closes or when the usage switches between exterior and interior.
// Each exterior ring becomes a polygon; interior rings become holes of the
// exterior that contains them.
func (ds *dataset) resolvePolygons(f *feature) []orb.Polygon {
	var rings []usageRing
	var current orb.Ring
	interior := false

	flush := func() {
		if len(current) >= 3 {
			if current[0] != current[len(current)-1] {
				current = append(current, current[0])
			}
			if len(current) >= 4 {
				rings = append(rings, usageRing{ring: current, interior: interior})
			}
		}
		current = nil
	}

	for _, ref := range ds.edgeRefs(f) {
		pts := ds.edgeCoords(ref.rcid, ref.orientation)
		if len(pts) == 0 {
			continue
		}
		refInterior := ref.usage == usageInterior
		if len(current) > 0 && refInterior != interior {
			flush()
		}
		interior = refInterior

		if n := len(current); n > 0 && current[n-1] == pts[0] {
			pts = pts[1:]
		}
		current = append(current, pts...)

		if len(current) >= 4 && current[0] == current[len(current)-1] {
			flush()
		}
	}
	flush()

	var polygons []orb.Polygon
	var holes []orb.Ring
	for _, r := range rings {
		if r.interior {
			holes = append(holes, r.ring)
			continue
		}
		polygons = append(polygons, orb.Polygon{r.ring})
	}
	if len(polygons) == 0 {
		return nil
	}

	for _, h := range holes {
		owner := 0
		if len(polygons) > 1 {
			for i, p := range polygons {
				if planar.RingContains(p[0], h[0]) {
					owner = i
					break
				}
			}
		}
		polygons[owner] = append(polygons[owner], h)
	}
	return polygons
}

// extent returns the bound of all vector coordinates.
func (ds *dataset) extent() domain.GeoRect {
	var b orb.Bound
	first := true
	for _, v := range ds.vectors {
		for _, c := range v.coords {
			pt := orb.Point{c[0], c[1]}
			if first {
				b = pt.Bound()
				first = false
				continue
			}
			b = b.Extend(pt)
		}
	}
	if first {
		return domain.GeoRect{}
	}
	return domain.RectFromBound(b)
}
