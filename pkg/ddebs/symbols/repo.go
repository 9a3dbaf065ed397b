package symbols

import (
	"context"
	"io"
)

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Extractor pulls named files out of a package archive, returning the local
// path of each file found.
type Extractor interface {
	ExtractFiles(ctx context.Context, archivePath, destDir string, names []string) (map[string]string, error)
}

// Converter turns a binary into symbol file contents.
type Converter interface {
	Convert(ctx context.Context, path string) ([]byte, error)
}

// Checker reports whether a symbol file is already published.
type Checker interface {
	Has(ctx context.Context, symbolName string) bool
}
