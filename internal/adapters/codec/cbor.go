// Package codec provides the packed binary Chart serialization used by the
// tile cache.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"

	"github.com/jobrunner/charttiler/internal/domain"
)

// FormatVersion is bumped whenever the Chart container layout changes.
// Cache entries written with another version are treated as misses.
const FormatVersion uint16 = 1

var magic = [4]byte{'C', 'T', 'C', 'H'}

const headerSize = len(magic) + 2

// CBORCodec implements ChartCodec with a versioned header followed by a
// deterministic CBOR body.
type CBORCodec struct {
	enc       cbor.EncMode
	dec       cbor.DecMode
	namespace string
}

// New creates a codec.
func New() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: 1 << 27,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &CBORCodec{
		enc:       enc,
		dec:       dec,
		namespace: Namespace(FormatVersion),
	}, nil
}

// Namespace derives the cache namespace of a format version.
func Namespace(version uint16) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("charttiler/chart/v%d", version)))
}

// Namespace implements ChartCodec.
func (c *CBORCodec) Namespace() string {
	return c.namespace
}

// Encode implements ChartCodec.
func (c *CBORCodec) Encode(chart *domain.Chart) ([]byte, error) {
	if chart == nil {
		return nil, fmt.Errorf("encoding nil chart: %w", domain.ErrInvalidInput)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	_ = binary.Write(&buf, binary.BigEndian, FormatVersion)

	if err := c.enc.NewEncoder(&buf).Encode(chart); err != nil {
		return nil, fmt.Errorf("encoding chart %s: %w", chart.Name, err)
	}
	return buf.Bytes(), nil
}

// Decode implements ChartCodec.
func (c *CBORCodec) Decode(data []byte) (*domain.Chart, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("short entry (%d bytes): %w", len(data), domain.ErrCacheCorrupt)
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("bad magic: %w", domain.ErrCacheCorrupt)
	}
	if v := binary.BigEndian.Uint16(data[len(magic):headerSize]); v != FormatVersion {
		return nil, fmt.Errorf("format version %d, want %d: %w", v, FormatVersion, domain.ErrCacheCorrupt)
	}

	var chart domain.Chart
	if err := c.dec.Unmarshal(data[headerSize:], &chart); err != nil {
		return nil, fmt.Errorf("decoding chart: %v: %w", err, domain.ErrCacheCorrupt)
	}
	if err := chart.Validate(); err != nil {
		return nil, fmt.Errorf("decoded chart: %v: %w", err, domain.ErrCacheCorrupt)
	}
	return &chart, nil
}
