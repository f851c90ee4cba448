package domain

import (
	"path/filepath"
	"strings"
)

// CatalogType identifies how the charts of one directory are stored.
type CatalogType int

// Catalog types.
const (
	CatalogInvalid CatalogType = iota
	CatalogUnencrypted
	CatalogFormatA
	CatalogFormatB
)

// String returns the type name.
func (t CatalogType) String() string {
	switch t {
	case CatalogUnencrypted:
		return "unencrypted"
	case CatalogFormatA:
		return "oesenc"
	case CatalogFormatB:
		return "oesu"
	default:
		return "invalid"
	}
}

// Encrypted reports whether charts must be read through the decrypt channel.
func (t CatalogType) Encrypted() bool {
	return t == CatalogFormatA || t == CatalogFormatB
}

// MarshalText implements encoding.TextMarshaler.
func (t CatalogType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Chart file extensions.
const (
	ExtUnencrypted = ".000"
	ExtFormatA     = ".oesenc"
	ExtFormatB     = ".oesu"
)

// ChartFileType classifies a file by extension.
func ChartFileType(name string) CatalogType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtUnencrypted:
		return CatalogUnencrypted
	case ExtFormatA:
		return CatalogFormatA
	case ExtFormatB:
		return CatalogFormatB
	default:
		return CatalogInvalid
	}
}

// IsChartFile reports whether the file has a known chart extension.
func IsChartFile(name string) bool {
	return ChartFileType(name) != CatalogInvalid
}

// Support files that live next to the charts of a directory.
const (
	ChartInfoFile = "Chartinfo.txt"
	KeyListExt    = ".xml"
)

// IsCatalogFile reports whether a file belongs to a chart directory: chart
// cells, the user key file and key lists.
func IsCatalogFile(name string) bool {
	base := filepath.Base(filepath.FromSlash(name))
	if IsChartFile(base) {
		return true
	}
	return strings.EqualFold(base, ChartInfoFile) || strings.EqualFold(filepath.Ext(base), KeyListExt)
}

// ChartHeader is the metadata available without a full decode.
type ChartHeader struct {
	Name        string  `json:"name"`
	NativeScale int     `json:"nativeScale"`
	Extent      GeoRect `json:"extent"`
}

// ChartInfo describes a chart candidate for one tile.
type ChartInfo struct {
	Name           string  `json:"name"`
	NativeScale    int     `json:"nativeScale"`
	BoundingBox    GeoRect `json:"boundingBox"`
	EnabledForTile bool    `json:"enabledForTile"`
}

// SourceInfo describes a registered chart source.
type SourceInfo struct {
	Name        string  `json:"name"`
	Directory   string  `json:"directory,omitempty"`
	NativeScale int     `json:"nativeScale"`
	Extent      GeoRect `json:"extent"`
	Enabled     bool    `json:"enabled"`
}
