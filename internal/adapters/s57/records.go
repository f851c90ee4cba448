package s57

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/beetlebugorg/iso8211/pkg/iso8211"

	"github.com/jobrunner/charttiler/internal/domain"
)

// Record names (RCNM).
const (
	rcnmIsolatedNode  = 110
	rcnmConnectedNode = 120
	rcnmEdge          = 130
	rcnmFace          = 140
	rcnmFeature       = 100
	rcnmDatasetParams = 20
)

// Geometric primitives (PRIM).
const (
	primPoint = 1
	primLine  = 2
	primArea  = 3
)

// Usage indicators (USAG).
const (
	usageExterior          = 1
	usageInterior          = 2
	usageExteriorTruncated = 3
)

const (
	orientationReverse = 2
	unitSeparator      = 0x1F
	defaultCOMF        = 10000000
	defaultSOMF        = 10
)

type vectorKey struct {
	rcnm int
	rcid uint32
}

type pointer struct {
	rcnm        int
	rcid        uint32
	orientation int
	usage       int
}

type vector struct {
	key      vectorKey
	coords   [][2]float64
	depths   []float64
	pointers []pointer
}

type feature struct {
	prim       int
	class      domain.ObjectClass
	attributes map[domain.AttributeCode]string
	spatial    []pointer
}

// dataset holds the raw records of one cell.
type dataset struct {
	name     string
	scale    int
	comf     float64
	somf     float64
	vectors  map[vectorKey]*vector
	features []*feature
}

func newDataset(file *iso8211.ISO8211File) *dataset {
	ds := &dataset{
		comf:    defaultCOMF,
		somf:    defaultSOMF,
		vectors: make(map[vectorKey]*vector),
	}

	// Parameters come first so coordinates scale correctly.
	for _, rec := range file.Records {
		if data, ok := rec.Fields["DSID"]; ok && ds.name == "" {
			ds.name = parseDSID(data)
		}
		if data, ok := rec.Fields["DSPM"]; ok {
			ds.parseDSPM(data)
		}
	}

	for _, rec := range file.Records {
		if data, ok := rec.Fields["VRID"]; ok {
			if v := ds.parseVector(data, rec.Fields); v != nil {
				ds.vectors[v.key] = v
			}
			continue
		}
		if data, ok := rec.Fields["FRID"]; ok {
			if f := parseFeature(data, rec.Fields); f != nil {
				ds.features = append(ds.features, f)
			}
		}
	}
	return ds
}

// parseDSID returns the data set name (DSNM), the first variable length
// subfield after RCNM, RCID, EXPP and INTU.
func parseDSID(data []byte) string {
	const fixed = 7
	if len(data) <= fixed {
		return ""
	}
	rest := data[fixed:]
	if i := bytes.IndexByte(rest, unitSeparator); i >= 0 {
		rest = rest[:i]
	}
	name := strings.TrimSpace(string(rest))
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		name = name[:dot]
	}
	return name
}

// parseDSPM reads CSCL, COMF and SOMF.
func (ds *dataset) parseDSPM(data []byte) {
	if len(data) < 24 || data[0] != rcnmDatasetParams {
		return
	}
	ds.scale = int(binary.LittleEndian.Uint32(data[8:12]))
	if comf := int32(binary.LittleEndian.Uint32(data[16:20])); comf > 0 {
		ds.comf = float64(comf)
	}
	if somf := int32(binary.LittleEndian.Uint32(data[20:24])); somf > 0 {
		ds.somf = float64(somf)
	}
}

func (ds *dataset) parseVector(vrid []byte, fields map[string][]byte) *vector {
	if len(vrid) < 8 {
		return nil
	}
	v := &vector{key: vectorKey{
		rcnm: int(vrid[0]),
		rcid: binary.LittleEndian.Uint32(vrid[1:5]),
	}}

	if sg2d, ok := fields["SG2D"]; ok {
		for i := 0; i+8 <= len(sg2d); i += 8 {
			v.coords = append(v.coords, [2]float64{
				float64(int32(binary.LittleEndian.Uint32(sg2d[i:]))) / ds.comf,
				float64(int32(binary.LittleEndian.Uint32(sg2d[i+4:]))) / ds.comf,
			})
		}
	}
	if sg3d, ok := fields["SG3D"]; ok {
		for i := 0; i+12 <= len(sg3d); i += 12 {
			v.coords = append(v.coords, [2]float64{
				float64(int32(binary.LittleEndian.Uint32(sg3d[i:]))) / ds.comf,
				float64(int32(binary.LittleEndian.Uint32(sg3d[i+4:]))) / ds.comf,
			})
			v.depths = append(v.depths, float64(int32(binary.LittleEndian.Uint32(sg3d[i+8:])))/ds.somf)
		}
	}
	if vrpt, ok := fields["VRPT"]; ok {
		for i := 0; i+9 <= len(vrpt); i += 9 {
			v.pointers = append(v.pointers, pointer{
				rcnm:        int(vrpt[i]),
				rcid:        binary.LittleEndian.Uint32(vrpt[i+1:]),
				orientation: int(vrpt[i+5]),
				usage:       int(vrpt[i+6]),
			})
		}
	}
	return v
}

func parseFeature(frid []byte, fields map[string][]byte) *feature {
	if len(frid) < 12 || frid[0] != rcnmFeature {
		return nil
	}
	f := &feature{
		prim:       int(frid[5]),
		class:      domain.ObjectClass(binary.LittleEndian.Uint16(frid[7:9])),
		attributes: make(map[domain.AttributeCode]string),
	}

	if attf, ok := fields["ATTF"]; ok {
		parseAttributes(attf, f.attributes)
	}
	if fspt, ok := fields["FSPT"]; ok {
		for i := 0; i+8 <= len(fspt); i += 8 {
			f.spatial = append(f.spatial, pointer{
				rcnm:        int(fspt[i]),
				rcid:        binary.LittleEndian.Uint32(fspt[i+1:]),
				orientation: int(fspt[i+5]),
				usage:       int(fspt[i+6]),
			})
		}
	}
	return f
}

// parseAttributes reads repeated ATTL (uint16) + ATVL (0x1F terminated)
// pairs.
func parseAttributes(data []byte, out map[domain.AttributeCode]string) {
	offset := 0
	for offset+2 <= len(data) {
		code := domain.AttributeCode(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2

		end := offset
		for end < len(data) && data[end] != unitSeparator {
			end++
		}
		if end > offset {
			out[code] = string(data[offset:end])
		}
		offset = end + 1
	}
}
