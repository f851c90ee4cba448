// Package s57 decodes IHO S-57 ENC cells into chart objects.
package s57

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/paulmach/orb"

	"github.com/jobrunner/charttiler/internal/domain"
)

// Decoder implements ChartDecoder for S-57 base cells.
type Decoder struct {
	tempDir string
	logger  *slog.Logger
}

// NewDecoder creates a decoder. Streams are spooled to tempDir, or the
// system temp directory when empty, because the ISO 8211 reader works on
// files.
func NewDecoder(tempDir string, logger *slog.Logger) *Decoder {
	return &Decoder{tempDir: tempDir, logger: logger}
}

// ReadHeader implements ChartDecoder.
func (d *Decoder) ReadHeader(ctx context.Context, r io.Reader) (*domain.ChartHeader, error) {
	ds, err := d.parse(ctx, r)
	if err != nil {
		return nil, err
	}
	header := ds.header(ds.objects())
	return &header, nil
}

// Decode implements ChartDecoder.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (*domain.DecodedChart, error) {
	ds, err := d.parse(ctx, r)
	if err != nil {
		return nil, err
	}

	objects := ds.objects()
	d.logger.Debug("decoded cell",
		"name", ds.name,
		"features", len(ds.features),
		"objects", len(objects),
		"vectors", len(ds.vectors),
	)

	return &domain.DecodedChart{Header: ds.header(objects), Objects: objects}, nil
}

func (d *Decoder) parse(ctx context.Context, r io.Reader) (*dataset, error) {
	path, err := d.spool(r)
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	defer func() { _ = os.Remove(path) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := iso8211.NewReader(path)
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	defer func() { _ = reader.Close() }()

	file, err := reader.Parse()
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("parsing ISO 8211: %w", err)}
	}

	ds := newDataset(file)
	if ds.name == "" {
		return nil, &domain.DecodeError{Err: fmt.Errorf("missing DSID record: %w", domain.ErrInvalidChart)}
	}
	return ds, nil
}

func (d *Decoder) spool(r io.Reader) (string, error) {
	f, err := os.CreateTemp(d.tempDir, "cell-*.000")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// header derives the extent from the coverage objects (M_COVR with
// CATCOV=1) and falls back to the bound of all coordinates.
func (ds *dataset) header(objects []domain.ChartObject) domain.ChartHeader {
	var b orb.Bound
	found := false
	for _, obj := range objects {
		if obj.Class != domain.ClassCoverage {
			continue
		}
		if cat, ok := obj.AttrInt(domain.AttrCategoryOfCoverage); ok && cat != 1 {
			continue
		}
		for _, p := range obj.Polygons {
			if !found {
				b = p.Bound()
				found = true
				continue
			}
			b = b.Union(p.Bound())
		}
	}

	extent := ds.extent()
	if found {
		extent = domain.RectFromBound(b)
	}
	return domain.ChartHeader{Name: ds.name, NativeScale: ds.scale, Extent: extent}
}
