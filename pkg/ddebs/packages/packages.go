// Package packages parses Debian "Packages" index files into per-archive
// records.
package packages

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"pault.ag/go/debian/control"
)

var log = logging.Logger("ddebs/packages")

// Index is a parsed Packages file.
type Index struct {
	// Records maps the archive's Filename (relative to the repository root) to
	// its record.
	Records map[string]model.PackageRecord
	// Order lists the keys of Records in the order they first appeared.
	Order []string
	// Count is the number of stanzas that carried a Filename, duplicates
	// included.
	Count int
	// Conflicts is the number of duplicate Filenames whose stanzas differed.
	Conflicts int
}

// stanza holds the fields of a binary index paragraph that records are built
// from. The full paragraph is kept for duplicate detection.
type stanza struct {
	control.Paragraph

	Package      string
	Architecture string
	Filename     string
}

// Parse decodes a Packages file and keys each stanza by its Filename field.
// Stanzas without a Filename are skipped. A Filename seen more than once keeps
// the last stanza; if the stanzas differ a warning is logged.
func Parse(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading packages index: %w", err)
	}

	idx := &Index{Records: make(map[string]model.PackageRecord)}
	if len(bytes.TrimSpace(data)) == 0 {
		return idx, nil
	}
	var stanzas []stanza
	if err := control.Unmarshal(&stanzas, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decoding packages index: %w", err)
	}

	seen := make(map[string]control.Paragraph)
	for _, s := range stanzas {
		filename := strings.TrimSpace(s.Filename)
		if filename == "" {
			continue
		}
		idx.Count++
		if prev, ok := seen[filename]; ok {
			if !sameParagraph(prev, s.Paragraph) {
				idx.Conflicts++
				log.Warnw("download URL found multiple times with different descriptions", "filename", filename, "package", s.Package)
			}
		} else {
			idx.Order = append(idx.Order, filename)
		}
		seen[filename] = s.Paragraph
		idx.Records[filename] = model.PackageRecord{
			URL:  filename,
			Text: render(s.Paragraph),
			Arch: strings.TrimSpace(s.Architecture),
		}
	}
	log.Infow("parsed packages index", "packages", idx.Count, "unique", len(idx.Order))
	return idx, nil
}

func sameParagraph(a, b control.Paragraph) bool {
	return slices.Equal(a.Order, b.Order) && maps.Equal(a.Values, b.Values)
}

// render writes p back out in control file syntax.
func render(p control.Paragraph) string {
	var b strings.Builder
	for _, key := range p.Order {
		lines := strings.Split(p.Values[key], "\n")
		fmt.Fprintf(&b, "%s: %s\n", key, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(&b, " %s\n", strings.TrimPrefix(line, " "))
		}
	}
	return b.String()
}
