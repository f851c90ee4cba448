package domain

import "math"

// Web Mercator helpers. Pixel measures are expressed through
// pixels per degree of longitude (ppl), which is constant across latitudes.

// MercatorNormalizedHeight is the projected distance between two latitudes
// in radians.
func MercatorNormalizedHeight(topLat, bottomLat float64) float64 {
	return mercatorY(topLat) - mercatorY(bottomLat)
}

// MercatorHeight is the pixel height between two latitudes.
func MercatorHeight(topLat, bottomLat, ppl float64) float64 {
	return pplRadians(ppl) * MercatorNormalizedHeight(topLat, bottomLat)
}

// MercatorHeightInverse returns the latitude lying height pixels below
// topLat. Negative heights move north.
func MercatorHeightInverse(topLat, height, ppl float64) float64 {
	y := mercatorY(topLat) - height/pplRadians(ppl)
	return (2*math.Atan(math.Exp(y)) - math.Pi/2) * 180 / math.Pi
}

// MercatorWidth is the pixel width between two longitudes.
func MercatorWidth(leftLon, rightLon, ppl float64) float64 {
	return pplRadians(ppl) * (rightLon - leftLon) * math.Pi / 180
}

// MercatorWidthInverse returns the longitude lying pixels to the east of
// leftLon.
func MercatorWidthInverse(leftLon, pixels, ppl float64) float64 {
	return leftLon + pixels/ppl
}

// ToLongitude converts a normalized x in [0,1] to longitude.
func ToLongitude(x float64) float64 {
	return x*360 - 180
}

// ToLatitude converts a normalized y in [0,1], growing southwards, to
// latitude.
func ToLatitude(y float64) float64 {
	return 2 * (math.Atan(math.Exp(math.Pi*(1-2*y))) - math.Pi/4) * 180 / math.Pi
}

// NormalizedX converts longitude to x in [0,1].
func NormalizedX(lon float64) float64 {
	return (lon + 180) / 360
}

// NormalizedY converts latitude to y in [0,1], growing southwards.
func NormalizedY(lat float64) float64 {
	return (math.Pi - mercatorY(lat)) / (2 * math.Pi)
}

// MercatorLatLimit is the largest latitude the projection covers.
var MercatorLatLimit = math.Atan(math.Sinh(math.Pi)) * 180 / math.Pi

func mercatorY(lat float64) float64 {
	phi := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + phi/2))
}

func pplRadians(ppl float64) float64 {
	return ppl * 180 / math.Pi
}
