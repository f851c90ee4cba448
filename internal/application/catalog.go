package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// Catalog is one directory of chart files of a single type. Reads of
// encrypted charts go through the decrypt channel, which carries one stream
// at a time: a Catalog never hands out a second stream while the first is
// open.
type Catalog struct {
	dir      string
	channel  output.DecryptChannel
	decoders map[domain.CatalogType]output.ChartDecoder
	logger   *slog.Logger
	strict   bool

	// gate serializes whole open, read, close cycles. Catalogs that share
	// a decrypt channel share the gate.
	gate *sync.Mutex

	mu     sync.Mutex
	inUse  bool
	typ    domain.CatalogType
	files  []string
	user   string
	keys   map[string]string
	reason error
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithStrictStreams makes a second concurrent OpenChart panic instead of
// returning domain.ErrStreamInUse.
func WithStrictStreams(strict bool) CatalogOption {
	return func(c *Catalog) { c.strict = strict }
}

// WithGate shares the open, read, close gate with other catalogs.
func WithGate(gate *sync.Mutex) CatalogOption {
	return func(c *Catalog) {
		if gate != nil {
			c.gate = gate
		}
	}
}

// WithDecoder registers the decoder for charts of one type. A type without
// decoder is never detected.
func WithDecoder(t domain.CatalogType, d output.ChartDecoder) CatalogOption {
	return func(c *Catalog) { c.decoders[t] = d }
}

// NewCatalog scans dir and detects the type of its charts. An unreadable
// directory is an error; a directory without usable charts yields a catalog
// of type domain.CatalogInvalid. channel may be nil.
func NewCatalog(ctx context.Context, dir string, channel output.DecryptChannel, logger *slog.Logger, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		dir:      dir,
		channel:  channel,
		decoders: make(map[domain.CatalogType]output.ChartDecoder),
		logger:   logger,
		gate:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(c)
	}

	found, err := scanChartFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", dir, domain.ErrDirectoryNotFound, err)
	}

	c.gate.Lock()
	c.typ, c.reason = c.detect(ctx, found)
	c.gate.Unlock()

	c.files = found[c.typ]
	if c.typ == domain.CatalogInvalid {
		for _, names := range found {
			c.files = append(c.files, names...)
		}
		sort.Strings(c.files)
	}

	c.logger.Info("catalog scanned",
		"dir", dir,
		"type", c.typ.String(),
		"charts", len(c.files),
	)
	if c.reason != nil {
		c.logger.Warn("catalog not usable", "dir", dir, "reason", c.reason)
	}

	return c, nil
}

// scanChartFiles groups the chart files of dir by type.
func scanChartFiles(dir string) (map[domain.CatalogType][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	found := make(map[domain.CatalogType][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if t := domain.ChartFileType(e.Name()); t != domain.CatalogInvalid {
			found[t] = append(found[t], e.Name())
		}
	}
	for _, names := range found {
		sort.Strings(names)
	}
	return found, nil
}

// detect tries the plain fast path first, then the decrypt channel with the
// first file of each encrypted format. Keys are loaded on the way.
func (c *Catalog) detect(ctx context.Context, found map[domain.CatalogType][]string) (domain.CatalogType, error) {
	if names := found[domain.CatalogUnencrypted]; len(names) > 0 {
		if err := c.probe(ctx, domain.CatalogUnencrypted, names[0]); err == nil {
			return domain.CatalogUnencrypted, nil
		} else if len(found[domain.CatalogFormatA])+len(found[domain.CatalogFormatB]) == 0 {
			return domain.CatalogInvalid, err
		}
	}

	if len(found[domain.CatalogFormatA])+len(found[domain.CatalogFormatB]) == 0 {
		return domain.CatalogInvalid, fmt.Errorf("no chart files: %w", domain.ErrCatalogInvalid)
	}
	if c.channel == nil || !c.channel.Ready(ctx) {
		return domain.CatalogInvalid, domain.ErrChannelUnavailable
	}

	var lastErr error = domain.ErrCatalogInvalid
	if names := found[domain.CatalogFormatA]; len(names) > 0 {
		user, err := readUserKey(c.dir)
		if err == nil {
			c.user = user
			if err = c.probe(ctx, domain.CatalogFormatA, names[0]); err == nil {
				return domain.CatalogFormatA, nil
			}
		}
		lastErr = err
	}

	if names := found[domain.CatalogFormatB]; len(names) > 0 {
		keys, err := readKeyList(c.dir)
		if err == nil {
			c.keys = keys
			if err = c.probe(ctx, domain.CatalogFormatB, names[0]); err == nil {
				return domain.CatalogFormatB, nil
			}
		}
		lastErr = err
	}

	return domain.CatalogInvalid, lastErr
}

// probe reads one header as if the catalog were of type t.
func (c *Catalog) probe(ctx context.Context, t domain.CatalogType, name string) error {
	decoder, ok := c.decoders[t]
	if !ok {
		return fmt.Errorf("%s: %w", t, domain.ErrUnsupportedFormat)
	}

	rc, err := c.open(ctx, t, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	_, err = decoder.ReadHeader(ctx, rc)
	return err
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Type returns the detected chart type.
func (c *Catalog) Type() domain.CatalogType {
	return c.typ
}

// Err returns why the catalog is invalid, or nil.
func (c *Catalog) Err() error {
	return c.reason
}

// Decoder returns the decoder for the catalog's charts, nil when invalid.
func (c *Catalog) Decoder() output.ChartDecoder {
	if c.typ == domain.CatalogInvalid {
		return nil
	}
	return c.decoders[c.typ]
}

// ChartFileNames returns the chart file names found at construction.
func (c *Catalog) ChartFileNames() []string {
	names := make([]string, len(c.files))
	copy(names, c.files)
	return names
}

// OpenChart returns a stream of the named chart. Only one stream may be open
// at a time; the caller must close it before opening the next. Most callers
// want WithChart.
func (c *Catalog) OpenChart(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.open(ctx, c.typ, name)
}

// WithChart runs fn on a stream of the named chart while holding the
// catalog gate for the whole cycle.
func (c *Catalog) WithChart(ctx context.Context, name string, fn func(io.Reader) error) error {
	c.gate.Lock()
	defer c.gate.Unlock()

	rc, err := c.OpenChart(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	return fn(rc)
}

func (c *Catalog) open(ctx context.Context, t domain.CatalogType, name string) (io.ReadCloser, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}

	rc, err := c.openStream(ctx, t, name)
	if err != nil {
		c.release()
		return nil, err
	}
	return &catalogStream{ReadCloser: rc, release: c.release}, nil
}

func (c *Catalog) openStream(ctx context.Context, t domain.CatalogType, name string) (io.ReadCloser, error) {
	path := filepath.Join(c.dir, filepath.Base(name))

	switch t {
	case domain.CatalogUnencrypted:
		return os.Open(path) //#nosec G304 -- name comes from the directory listing

	case domain.CatalogFormatA:
		if c.user == "" {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrKeyNotFound)
		}
		return c.channel.Open(ctx, output.DecryptRequest{
			Command: output.DecryptReadFormatA,
			Path:    path,
			Key:     c.user,
		})

	case domain.CatalogFormatB:
		key, ok := c.keys[stem(name)]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrKeyNotFound)
		}
		return c.channel.Open(ctx, output.DecryptRequest{
			Command: output.DecryptReadFormatB,
			Path:    path,
			Key:     key,
		})

	default:
		return nil, fmt.Errorf("%s: %w", c.dir, domain.ErrCatalogInvalid)
	}
}

func (c *Catalog) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inUse {
		if c.strict {
			panic("catalog: chart stream opened while another is still open in " + c.dir)
		}
		return domain.ErrStreamInUse
	}
	c.inUse = true
	return nil
}

func (c *Catalog) release() {
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
}

// catalogStream frees the catalog when closed.
type catalogStream struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (s *catalogStream) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.release)
	return err
}
