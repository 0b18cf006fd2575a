package port

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned for documents no extractor understands.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	// Detect returns the MIME type the document will be extracted as.
	Detect(name string, data []byte) (string, error)

	// Extract returns the plain text of the named document.
	Extract(ctx context.Context, name string, data []byte) (string, error)
}
