package domain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

const (
	// MaxTileSize is the tile edge in pixels used for zoom selection.
	MaxTileSize = 1024
	// MaxZoom is the deepest zoom level tiles are generated for.
	MaxZoom = 23
)

// Tile is one cell of the viewport grid.
type Tile struct {
	ID                    string  `json:"id"`
	BoundingBox           GeoRect `json:"boundingBox"`
	MaxPixelsPerLongitude int     `json:"maxPixelsPerLongitude"`
}

// TileRecipe is the geometric input of a tile cache key.
type TileRecipe struct {
	BoundingBox        GeoRect `json:"boundingBox"`
	PixelsPerLongitude int     `json:"pixelsPerLongitude"`
}

// ID returns the deterministic tile id of the recipe.
func (r TileRecipe) ID() string {
	return TileID(r.BoundingBox, r.PixelsPerLongitude)
}

// TileID hashes the rectangle edges and resolution into a 16 character
// hex id. Equal inputs always give equal ids, across processes.
func TileID(rect GeoRect, ppl int) string {
	var buf [40]byte
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(rect.Top))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(rect.Bottom))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(rect.Left))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(rect.Right))
	binary.LittleEndian.PutUint64(buf[32:], uint64(int64(ppl)))
	return fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
}

// ZoomLevel derives the discrete zoom for a resolution:
// clamp(ceil(log2(360*ppl/MaxTileSize)), 0, MaxZoom).
func ZoomLevel(ppl float64) int {
	if ppl <= 0 {
		return 0
	}
	// The tolerance keeps exact zoom resolutions from rounding up.
	z := int(math.Ceil(math.Log2(360*ppl/MaxTileSize) - 1e-9))
	if z < 0 {
		return 0
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// MaxPixelsPerLongitude is the finest resolution a zoom level serves.
func MaxPixelsPerLongitude(zoom int) int {
	return int(MaxTileSize / 360.0 * math.Pow(2, float64(zoom)))
}

// PixelsPerLongitudeForZoom is the inverse of ZoomLevel for slippy zooms
// where a MaxTileSize tile spans 360/2^zoom degrees.
func PixelsPerLongitudeForZoom(zoom int) float64 {
	return MaxTileSize / 360.0 * math.Pow(2, float64(zoom))
}

// DisplayScale approximates the scale denominator a resolution is
// displayed at.
func DisplayScale(ppl float64) int {
	if ppl <= 0 {
		return math.MaxInt32
	}
	return int(52246 / (ppl / 2560 * 0.6))
}

// Viewport returns the rectangle of a width x height pixel window centered
// on center.
func Viewport(center Pos, ppl float64, width, height int) GeoRect {
	halfW := float64(width) / 2
	halfH := float64(height) / 2
	return GeoRect{
		Top:    MercatorHeightInverse(center.Lat, -halfH, ppl),
		Bottom: MercatorHeightInverse(center.Lat, halfH, ppl),
		Left:   MercatorWidthInverse(center.Lon, -halfW, ppl),
		Right:  MercatorWidthInverse(center.Lon, halfW, ppl),
	}
}
