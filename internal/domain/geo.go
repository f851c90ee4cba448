// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Pos is a geographic position in degrees.
type Pos struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPos creates a position.
func NewPos(lat, lon float64) Pos {
	return Pos{Lat: lat, Lon: lon}
}

// Validate checks that the position lies on the WGS84 ellipsoid.
func (p Pos) Validate() error {
	if p.Lon < -180 || p.Lon > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      p.Lon,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	if p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      p.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	return nil
}

// Point converts the position to an orb point (lon, lat).
func (p Pos) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PosFromPoint converts an orb point (lon, lat) to a position.
func PosFromPoint(pt orb.Point) Pos {
	return Pos{Lat: pt[1], Lon: pt[0]}
}

// String returns a string representation of the position.
func (p Pos) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lat, p.Lon)
}

// GeoRect is an axis aligned geographic rectangle in degrees.
// Top is never below Bottom.
type GeoRect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// NewGeoRect creates a rectangle, swapping top and bottom if needed.
func NewGeoRect(top, bottom, left, right float64) GeoRect {
	if top < bottom {
		top, bottom = bottom, top
	}
	return GeoRect{Top: top, Bottom: bottom, Left: left, Right: right}
}

// RectFromBound converts an orb bound to a rectangle.
func RectFromBound(b orb.Bound) GeoRect {
	return GeoRect{Top: b.Max[1], Bottom: b.Min[1], Left: b.Min[0], Right: b.Max[0]}
}

// Bound converts the rectangle to an orb bound.
func (r GeoRect) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{r.Left, r.Bottom}, Max: orb.Point{r.Right, r.Top}}
}

// Validate checks the rectangle invariant.
func (r GeoRect) Validate() error {
	if r.Top < r.Bottom || r.Right < r.Left {
		return &ValidationError{
			Field:      "rect",
			Value:      r,
			Constraint: "top >= bottom, right >= left",
			Message:    "rectangle edges are inverted",
		}
	}
	if math.IsNaN(r.Top) || math.IsNaN(r.Bottom) || math.IsNaN(r.Left) || math.IsNaN(r.Right) {
		return &ValidationError{Field: "rect", Value: r, Constraint: "finite", Message: "rectangle has NaN edge"}
	}
	return nil
}

// Contains reports whether the position lies inside. Left and right edges
// are inclusive, top and bottom are exclusive.
func (r GeoRect) Contains(lat, lon float64) bool {
	return lon >= r.Left && lon <= r.Right && lat < r.Top && lat > r.Bottom
}

// ContainsPos is Contains for a Pos.
func (r GeoRect) ContainsPos(p Pos) bool {
	return r.Contains(p.Lat, p.Lon)
}

// Intersects reports whether the rectangles share any point, edges included.
func (r GeoRect) Intersects(o GeoRect) bool {
	return !(r.Left > o.Right || r.Right < o.Left || r.Bottom > o.Top || r.Top < o.Bottom)
}

// Intersection returns the overlapping part, or the zero rectangle.
func (r GeoRect) Intersection(o GeoRect) GeoRect {
	if !r.Intersects(o) {
		return GeoRect{}
	}
	return GeoRect{
		Top:    math.Min(r.Top, o.Top),
		Bottom: math.Max(r.Bottom, o.Bottom),
		Left:   math.Max(r.Left, o.Left),
		Right:  math.Min(r.Right, o.Right),
	}
}

// Encloses reports whether o lies completely inside r.
func (r GeoRect) Encloses(o GeoRect) bool {
	return r.Left <= o.Left && r.Right >= o.Right && r.Top >= o.Top && r.Bottom <= o.Bottom
}

// Union returns the smallest rectangle containing both.
func (r GeoRect) Union(o GeoRect) GeoRect {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	return GeoRect{
		Top:    math.Max(r.Top, o.Top),
		Bottom: math.Min(r.Bottom, o.Bottom),
		Left:   math.Min(r.Left, o.Left),
		Right:  math.Max(r.Right, o.Right),
	}
}

// Grow pads the rectangle by the given margins on every side.
func (r GeoRect) Grow(latMargin, lonMargin float64) GeoRect {
	return GeoRect{
		Top:    r.Top + latMargin,
		Bottom: r.Bottom - latMargin,
		Left:   r.Left - lonMargin,
		Right:  r.Right + lonMargin,
	}
}

// Width is the longitude span.
func (r GeoRect) Width() float64 { return r.Right - r.Left }

// Height is the latitude span.
func (r GeoRect) Height() float64 { return r.Top - r.Bottom }

// IsZero returns true for the zero rectangle.
func (r GeoRect) IsZero() bool {
	return r.Top == 0 && r.Bottom == 0 && r.Left == 0 && r.Right == 0
}

// TopLeft returns the north west corner.
func (r GeoRect) TopLeft() Pos { return Pos{Lat: r.Top, Lon: r.Left} }

// BottomRight returns the south east corner.
func (r GeoRect) BottomRight() Pos { return Pos{Lat: r.Bottom, Lon: r.Right} }

// String returns a string representation of the rectangle.
func (r GeoRect) String() string {
	return fmt.Sprintf("top: %f bottom: %f left: %f right: %f", r.Top, r.Bottom, r.Left, r.Right)
}
