package output

import (
	"context"
	"io"

	"github.com/jobrunner/charttiler/internal/domain"
)

// ChartDecoder defines the secondary port for reading raw chart files.
type ChartDecoder interface {
	// ReadHeader reads the chart's name, native scale and extent without
	// decoding its objects.
	ReadHeader(ctx context.Context, r io.Reader) (*domain.ChartHeader, error)

	// Decode reads the full object model of one chart.
	Decode(ctx context.Context, r io.Reader) (*domain.DecodedChart, error)
}

// ChartCodec serializes Chart containers for the cache.
type ChartCodec interface {
	// Encode serializes a chart.
	Encode(chart *domain.Chart) ([]byte, error)

	// Decode deserializes a chart. Stale or damaged input returns an error
	// wrapping domain.ErrCacheCorrupt.
	Decode(data []byte) (*domain.Chart, error)

	// Namespace identifies the serialized format. Entries written by other
	// formats live under other namespaces.
	Namespace() string
}
