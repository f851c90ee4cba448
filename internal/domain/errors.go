package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match these with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors wrap one of the sentinels above.
var (
	ErrChartNotFound      = fmt.Errorf("chart: %w", ErrNotFound)
	ErrDirectoryNotFound  = fmt.Errorf("chart directory: %w", ErrNotFound)
	ErrKeyNotFound        = fmt.Errorf("decryption key: %w", ErrNotFound)
	ErrCacheMiss          = fmt.Errorf("cache entry: %w", ErrNotFound)
	ErrInvalidChart       = fmt.Errorf("chart: %w", ErrInvalidInput)
	ErrCacheCorrupt       = fmt.Errorf("cache entry corrupt: %w", ErrInvalidInput)
	ErrCatalogInvalid     = fmt.Errorf("catalog: %w", ErrUnsupported)
	ErrUnsupportedFormat  = fmt.Errorf("chart format: %w", ErrUnsupported)
	ErrStreamInUse        = fmt.Errorf("catalog stream already open: %w", ErrInternal)
	ErrChannelUnavailable = fmt.Errorf("decrypt channel: %w", ErrUnavailable)
	ErrStorageUnavailable = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError describes a rejected request parameter. It matches
// ErrInvalidInput.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string // e.g. "> 0", "<= 90"
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s (%s)", e.Field, e.Value, e.Message, e.Constraint)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// DecodeError is returned when a chart file cannot be decoded.
type DecodeError struct {
	Chart string
	Err   error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decoding chart %s: %v", e.Chart, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// CacheError represents a failed cache store operation.
type CacheError struct {
	Operation string // get, put, delete, open
	Key       string
	Err       error
}

func (e *CacheError) Error() string { return opMessage("cache", e.Operation, e.Key, e.Err) }

func (e *CacheError) Unwrap() error { return e.Err }

// StorageError represents a failed chart mirror operation.
type StorageError struct {
	Operation string // list, download, read, exists
	Key       string
	Err       error
}

func (e *StorageError) Error() string { return opMessage("storage", e.Operation, e.Key, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func opMessage(kind, op, key string, err error) string {
	if key == "" {
		return fmt.Sprintf("%s %s: %v", kind, op, err)
	}
	return fmt.Sprintf("%s %s %s: %v", kind, op, key, err)
}
