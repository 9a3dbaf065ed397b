package model

import (
	"github.com/storacha/ddebsyms/pkg/ddebs/types"
)

// EntryKind distinguishes listing entries that are recursed into from entries
// that are downloaded.
type EntryKind string

const (
	// DirectoryEntry is a listing entry that is itself a directory listing.
	DirectoryEntry EntryKind = "directory"
	// ArchiveEntry is a listing entry pointing at a package archive.
	ArchiveEntry EntryKind = "archive"
)

// RepositoryEntry is a URL discovered while crawling a repository.
type RepositoryEntry struct {
	URL  string    `json:"url"`
	Kind EntryKind `json:"kind"`
	// Arch is the architecture tag taken from the file name stem. Empty for
	// directories.
	Arch string `json:"arch,omitempty"`
}

// NewArchiveEntry returns an archive entry, validating its fields.
func NewArchiveEntry(url, arch string) (RepositoryEntry, error) {
	if url == "" {
		return RepositoryEntry{}, types.ErrEmpty{Field: "url"}
	}
	if arch == "" {
		return RepositoryEntry{}, types.ErrEmpty{Field: "arch"}
	}
	return RepositoryEntry{URL: url, Kind: ArchiveEntry, Arch: arch}, nil
}

// NewDirectoryEntry returns a directory entry.
func NewDirectoryEntry(url string) (RepositoryEntry, error) {
	if url == "" {
		return RepositoryEntry{}, types.ErrEmpty{Field: "url"}
	}
	return RepositoryEntry{URL: url, Kind: DirectoryEntry}, nil
}

// Batch is the unit the crawler hands to the scan pass: the archives of one
// listed directory that still need scanning. When every archive in the batch
// has been scanned the directory itself is marked as listed.
type Batch struct {
	Dir      RepositoryEntry
	Archives []RepositoryEntry
}

// PackageRecord is one stanza of a Packages index, keyed by its download URL.
type PackageRecord struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Arch string `json:"arch,omitempty"`
}
