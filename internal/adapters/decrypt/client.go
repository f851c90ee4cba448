// Package decrypt implements the client side of the chart decryption
// channel.
package decrypt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

const (
	fieldSize         = 256
	defaultKeyLength  = 256
	defaultAttempts   = 5
	defaultRetryDelay = 500 * time.Millisecond
	defaultIdle       = 10 * time.Second
)

// Config configures the client.
type Config struct {
	SocketPath  string        // Unix socket of the decryption process
	KeyLength   int           // Size of the key field
	Attempts    int           // Connect attempts per request
	RetryDelay  time.Duration // Delay between connect attempts
	IdleTimeout time.Duration // A stream ends when no byte arrives for this long
}

// Client implements DecryptChannel over a Unix domain socket. It allows a
// single open stream at a time.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	open bool
}

// NewClient creates a client. Zero config values take defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = defaultKeyLength
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdle
	}
	return &Client{cfg: cfg, logger: logger}
}

// Ready sends a TestAvailability request.
func (c *Client) Ready(ctx context.Context) bool {
	if _, err := os.Stat(c.cfg.SocketPath); err != nil {
		return false
	}

	rc, err := c.Open(ctx, output.DecryptRequest{Command: output.DecryptTestAvailability})
	if err != nil {
		c.logger.Debug("decrypt channel not ready", "socket", c.cfg.SocketPath, "error", err)
		return false
	}
	defer func() { _ = rc.Close() }()

	var b [1]byte
	if _, err := rc.Read(b[:]); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return true
}

// Open implements DecryptChannel.
func (c *Client) Open(ctx context.Context, req output.DecryptRequest) (io.ReadCloser, error) {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil, fmt.Errorf("decrypt channel: %w", domain.ErrStreamInUse)
	}
	c.open = true
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.release()
		return nil, err
	}

	frame, err := c.frame(req)
	if err != nil {
		_ = conn.Close()
		c.release()
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		_ = conn.Close()
		c.release()
		return nil, fmt.Errorf("writing request: %v: %w", err, domain.ErrChannelUnavailable)
	}

	return &stream{conn: conn, idle: c.cfg.IdleTimeout, release: c.release}, nil
}

func (c *Client) release() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "unix", c.cfg.SocketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt == c.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("connecting to %s: %v: %w", c.cfg.SocketPath, lastErr, domain.ErrChannelUnavailable)
}

// frame encodes [command][socket name][path][key] with null padded fields.
func (c *Client) frame(req output.DecryptRequest) ([]byte, error) {
	if len(c.cfg.SocketPath) > fieldSize || len(req.Path) > fieldSize {
		return nil, &domain.ValidationError{
			Field:      "path",
			Value:      req.Path,
			Constraint: fmt.Sprintf("<= %d bytes", fieldSize),
			Message:    "path does not fit the request field",
		}
	}
	if len(req.Key) > c.cfg.KeyLength {
		return nil, &domain.ValidationError{
			Field:      "key",
			Constraint: fmt.Sprintf("<= %d bytes", c.cfg.KeyLength),
			Message:    "key does not fit the request field",
		}
	}

	buf := make([]byte, 1+2*fieldSize+c.cfg.KeyLength)
	buf[0] = byte(req.Command)
	copy(buf[1:], c.cfg.SocketPath)
	copy(buf[1+fieldSize:], req.Path)
	copy(buf[1+2*fieldSize:], req.Key)
	return buf, nil
}

// stream reads until the far end closes or stays silent for the idle
// timeout.
type stream struct {
	conn    net.Conn
	idle    time.Duration
	release func()
	once    sync.Once
}

func (s *stream) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, io.EOF
	}
	return n, err
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
		s.release()
	})
	return err
}
