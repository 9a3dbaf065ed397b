package crawl

import (
	"context"
	"io"
)

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Lister returns the entries of a directory listing as absolute URLs, in the
// order the listing presents them. Directory entries end in "/".
type Lister interface {
	List(ctx context.Context, url string) ([]string, error)
}
