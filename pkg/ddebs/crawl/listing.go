package crawl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// HTMLLister lists the links of an HTML directory index, the kind produced by
// Apache's mod_autoindex.
type HTMLLister struct {
	Fetcher Fetcher
}

func (l HTMLLister) List(ctx context.Context, listingURL string) ([]string, error) {
	var buf bytes.Buffer
	if err := l.Fetcher.Fetch(ctx, listingURL, &buf); err != nil {
		return nil, fmt.Errorf("fetching listing %s: %w", listingURL, err)
	}
	return ParseListing(listingURL, &buf)
}

// ParseListing returns the targets of every anchor whose href equals its text,
// resolved against base. That rule keeps the file and directory entries of an
// index page and drops sort links, "Parent Directory" and the like. Relative
// links to the parent directory are dropped too.
func ParseListing(base string, r io.Reader) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing listing URL: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing listing %s: %w", base, err)
	}

	var links []string
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href, ok := attr(n, "href")
			if ok && href != "" && href == text(n) && !strings.HasPrefix(href, "../") {
				ref, err := url.Parse(href)
				if err == nil {
					links = append(links, baseURL.ResolveReference(ref).String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return links, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
