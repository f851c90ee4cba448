package domain

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ObjectClass is an S-57 object class code (OBJL).
type ObjectClass uint16

// Object classes the converter understands.
const (
	ClassBeaconCardinal        ObjectClass = 5   // BCNCAR
	ClassBeaconIsolatedDanger  ObjectClass = 6   // BCNISD
	ClassBeaconLateral         ObjectClass = 7   // BCNLAT
	ClassBeaconSafeWater       ObjectClass = 8   // BCNSAW
	ClassBeaconSpecialPurpose  ObjectClass = 9   // BCNSPP
	ClassBuiltUpArea           ObjectClass = 13  // BUAARE
	ClassBuoyLateral           ObjectClass = 17  // BOYLAT
	ClassCoastline             ObjectClass = 30  // COALNE
	ClassDepthArea             ObjectClass = 42  // DEPARE
	ClassDepthContour          ObjectClass = 43  // DEPCNT
	ClassLandArea              ObjectClass = 71  // LNDARE
	ClassLandRegion            ObjectClass = 73  // LNDRGN
	ClassPontoon               ObjectClass = 95  // PONTON
	ClassRoad                  ObjectClass = 116 // ROADWY
	ClassShorelineConstruction ObjectClass = 122 // SLCONS
	ClassSounding              ObjectClass = 129 // SOUNDG
	ClassUnderwaterRock        ObjectClass = 153 // UWTROC
	ClassCoverage              ObjectClass = 302 // M_COVR
)

// AttributeCode is an S-57 attribute code (ATTL).
type AttributeCode uint16

// Attributes the converter reads.
const (
	AttrBeaconShape        AttributeCode = 2   // BCNSHP
	AttrBuoyShape          AttributeCode = 4   // BOYSHP
	AttrCategoryOfCoverage AttributeCode = 18  // CATCOV
	AttrCategoryOfLateral  AttributeCode = 36  // CATLAM
	AttrCategoryOfRoad     AttributeCode = 57  // CATROD
	AttrColour             AttributeCode = 75  // COLOUR
	AttrDepthValue1        AttributeCode = 87  // DRVAL1
	AttrObjectName         AttributeCode = 116 // OBJNAM
	AttrValueOfSounding    AttributeCode = 179 // VALSOU
	AttrWaterLevel         AttributeCode = 187 // WATLEV
)

// ChartObject is one decoded feature record with its resolved geometry.
type ChartObject struct {
	Class      ObjectClass
	Attributes map[AttributeCode]string
	Point      *orb.Point
	Soundings  []Sounding
	Lines      orb.MultiLineString
	Polygons   []orb.Polygon
}

// Attr returns a raw attribute value.
func (o *ChartObject) Attr(code AttributeCode) (string, bool) {
	v, ok := o.Attributes[code]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// AttrInt returns an attribute parsed as an integer.
func (o *ChartObject) AttrInt(code AttributeCode) (int, bool) {
	v, ok := o.Attr(code)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// AttrFloat returns an attribute parsed as a float.
func (o *ChartObject) AttrFloat(code AttributeCode) (float64, bool) {
	v, ok := o.Attr(code)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AttrInts returns a comma separated list attribute such as COLOUR.
func (o *ChartObject) AttrInts(code AttributeCode) []int {
	v, ok := o.Attr(code)
	if !ok {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// HasPolygons reports whether the object has area geometry.
func (o *ChartObject) HasPolygons() bool { return len(o.Polygons) > 0 }

// DecodedChart is the full object model of one chart file.
type DecodedChart struct {
	Header  ChartHeader
	Objects []ChartObject
}
