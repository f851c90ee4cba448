package output

import (
	"context"
	"io"
)

// DecryptCommand selects the operation of the decryption process.
type DecryptCommand byte

// Commands understood by the decryption process.
const (
	DecryptReadChart        DecryptCommand = 0
	DecryptTestAvailability DecryptCommand = 1
	DecryptExit             DecryptCommand = 2
	DecryptReadHeader       DecryptCommand = 3
	DecryptReadFormatA      DecryptCommand = 4
	DecryptReadFormatB      DecryptCommand = 5
)

// DecryptRequest is one request to the decryption process.
type DecryptRequest struct {
	Command DecryptCommand
	Path    string
	Key     string
}

// DecryptChannel defines the secondary port for the decryption side channel.
// Only one stream may be open at a time.
type DecryptChannel interface {
	// Ready reports whether the decryption process answers.
	Ready(ctx context.Context) bool

	// Open sends the request and returns the decrypted byte stream.
	Open(ctx context.Context, req DecryptRequest) (io.ReadCloser, error)
}
