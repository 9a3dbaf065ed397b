package symbols

import (
	"context"
	"fmt"
	"net/url"
)

// Header issues HEAD requests.
type Header interface {
	Head(ctx context.Context, url string) (bool, error)
}

// Server is a symbol server answering HEAD requests for
// "<base>/<basename>/<id>/<basename>.sym".
type Server struct {
	base   *url.URL
	header Header
}

// NewServer returns a Server rooted at baseURL.
func NewServer(baseURL string, header Header) (*Server, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing symbol server URL: %w", err)
	}
	return &Server{base: u, header: header}, nil
}

// Has reports whether the server already serves symbolName. Request errors
// are logged and reported as absent, so the symbols get regenerated.
func (s *Server) Has(ctx context.Context, symbolName string) bool {
	u := s.base.JoinPath(symbolName).String()
	ok, err := s.header.Head(ctx, u)
	if err != nil {
		log.Warnw("checking symbol server", "url", u, "err", err)
		return false
	}
	return ok
}
