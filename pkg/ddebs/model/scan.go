package model

import (
	"time"
)

// FileID is a single (path, build ID) pair observed inside an archive. Path is
// the absolute install path, e.g. "/usr/lib/debug/.build-id/99/c210.debug".
type FileID struct {
	Path    string `json:"path"`
	BuildID string `json:"build_id"`
}

// PackageScan is the cached result of scanning one archive.
type PackageScan struct {
	Files     []FileID  `json:"files"`
	ScannedAt time.Time `json:"scanned_at"`
	// Digest is the multihash (hex) of the downloaded archive bytes.
	Digest string `json:"digest,omitempty"`
}

// Facts expands the scan into identifier facts owned by ownerURL.
func (s PackageScan) Facts(ownerURL string) []IdentifierFact {
	facts := make([]IdentifierFact, 0, len(s.Files))
	for _, f := range s.Files {
		facts = append(facts, IdentifierFact{BuildID: f.BuildID, Path: f.Path, Owner: ownerURL})
	}
	return facts
}

// IdentifierFact ties a build ID to the file carrying it and the archive that
// installs that file.
type IdentifierFact struct {
	BuildID string `json:"build_id"`
	Path    string `json:"path"`
	Owner   string `json:"owner"`
}

// MissingSymbolRequest is a (debug file, identifier) pair reported by a crash
// analysis source.
type MissingSymbolRequest struct {
	DebugFile string `json:"debug_file"`
	DebugID   string `json:"debug_id"`
}

// SymbolArtifact is a converted symbol file ready to be archived. Name is the
// archive path, "<basename>/<id>/<basename>.sym".
type SymbolArtifact struct {
	Name     string
	Contents []byte
}
