package scans

import (
	"context"
	"io"
	"io/fs"
)

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Unpacker extracts an archive's file tree into destDir. It must write through
// the same file system the Scanner was given.
type Unpacker interface {
	Unpack(ctx context.Context, archivePath, destDir string) error
}

// Prober reports the build ID of a file, or "" if it has none.
type Prober interface {
	Probe(fsys fs.FS, name string) (string, error)
}
