package domain

import "fmt"

// BeaconShape follows the S-57 BCNSHP attribute.
type BeaconShape uint8

// Beacon shapes.
const (
	BeaconUnknown BeaconShape = iota
	BeaconStake
	BeaconWithy
	BeaconTower
	BeaconLattice
	BeaconPile
	BeaconCairn
	BeaconBuoyant
)

var beaconShapeNames = []string{
	"unknown", "stake", "withy", "beacon_tower", "lattice_beacon",
	"pile_beacon", "cairn", "buoyant",
}

func (s BeaconShape) String() string { return enumName(beaconShapeNames, int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s BeaconShape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BeaconShape) UnmarshalText(b []byte) error {
	v, err := enumValue(beaconShapeNames, string(b))
	*s = BeaconShape(v)
	return err
}

// WaterLevelEffect follows the S-57 WATLEV attribute.
type WaterLevelEffect uint8

// Water level effects.
const (
	WaterLevelUnknown WaterLevelEffect = iota
	PartlySubmergedAtHighWater
	AlwaysDry
	AlwaysSubmerged
	CoversAndUncovers
	Awash
	SubjectToFlooding
	Floating
)

var waterLevelNames = []string{
	"unknown", "partly_submerged_at_high_water", "always_dry",
	"always_submerged", "covers_and_uncovers", "awash",
	"subject_to_flooding", "floating",
}

func (w WaterLevelEffect) String() string { return enumName(waterLevelNames, int(w)) }

// MarshalText implements encoding.TextMarshaler.
func (w WaterLevelEffect) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WaterLevelEffect) UnmarshalText(b []byte) error {
	v, err := enumValue(waterLevelNames, string(b))
	*w = WaterLevelEffect(v)
	return err
}

// LateralCategory follows the S-57 CATLAM attribute.
type LateralCategory uint8

// Lateral mark categories.
const (
	LateralUnknown LateralCategory = iota
	LateralPort
	LateralStarboard
	LateralChannelToStarboard
	LateralChannelToPort
)

var lateralNames = []string{
	"unknown", "port", "starboard", "channel_to_starboard", "channel_to_port",
}

func (c LateralCategory) String() string { return enumName(lateralNames, int(c)) }

// MarshalText implements encoding.TextMarshaler.
func (c LateralCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *LateralCategory) UnmarshalText(b []byte) error {
	v, err := enumValue(lateralNames, string(b))
	*c = LateralCategory(v)
	return err
}

// BuoyShape follows the S-57 BOYSHP attribute.
type BuoyShape uint8

// Buoy shapes.
const (
	BuoyUnknown BuoyShape = iota
	BuoyConical
	BuoyCan
	BuoySpherical
	BuoyPillar
	BuoySpar
	BuoyBarrel
	BuoySuper
	BuoyIce
)

var buoyShapeNames = []string{
	"unknown", "conical", "can", "spherical", "pillar", "spar", "barrel",
	"super_buoy", "ice_buoy",
}

func (s BuoyShape) String() string { return enumName(buoyShapeNames, int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s BuoyShape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BuoyShape) UnmarshalText(b []byte) error {
	v, err := enumValue(buoyShapeNames, string(b))
	*s = BuoyShape(v)
	return err
}

// Color follows the S-57 COLOUR attribute.
type Color uint8

// Colors.
const (
	ColorUnknown Color = iota
	ColorWhite
	ColorBlack
	ColorRed
	ColorGreen
	ColorBlue
	ColorYellow
	ColorGrey
	ColorBrown
	ColorAmber
	ColorViolet
	ColorOrange
	ColorMagenta
	ColorPink
)

var colorNames = []string{
	"unknown", "white", "black", "red", "green", "blue", "yellow", "grey",
	"brown", "amber", "violet", "orange", "magenta", "pink",
}

func (c Color) String() string { return enumName(colorNames, int(c)) }

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	v, err := enumValue(colorNames, string(b))
	*c = Color(v)
	return err
}

// RoadCategory follows the S-57 CATROD attribute.
type RoadCategory uint8

// Road categories.
const (
	RoadUnknown RoadCategory = iota
	RoadMotorway
	RoadMajor
	RoadMinor
	RoadTrack
	RoadMajorStreet
	RoadMinorStreet
	RoadCrossing
)

var roadNames = []string{
	"unknown", "motorway", "major_road", "minor_road", "track",
	"major_street", "minor_street", "crossing",
}

func (c RoadCategory) String() string { return enumName(roadNames, int(c)) }

// MarshalText implements encoding.TextMarshaler.
func (c RoadCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RoadCategory) UnmarshalText(b []byte) error {
	v, err := enumValue(roadNames, string(b))
	*c = RoadCategory(v)
	return err
}

func enumName(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return names[0]
	}
	return names[v]
}

func enumValue(names []string, s string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown value %q: %w", s, ErrInvalidInput)
}
