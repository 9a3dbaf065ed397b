package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Archive describes a fake package archive: Contents are the bytes served for
// its URL, and Tree is what unpacking it produces, keyed by relative path.
type Archive struct {
	Contents string
	Tree     map[string][]byte
	// BrokenUnpack makes the unpacker fail for this archive.
	BrokenUnpack bool
}

// FakeRepo serves archives by URL and unpacks them into an afero file system.
// It counts fetches so tests can assert on network use.
type FakeRepo struct {
	Fs       afero.Fs
	Archives map[string]Archive

	mu      sync.Mutex
	fetches map[string]int
}

// NewFakeRepo returns a FakeRepo backed by fsys.
func NewFakeRepo(fsys afero.Fs, archives map[string]Archive) *FakeRepo {
	for url, a := range archives {
		if a.Contents == "" {
			a.Contents = url
			archives[url] = a
		}
	}
	return &FakeRepo{Fs: fsys, Archives: archives, fetches: make(map[string]int)}
}

// Fetch writes the archive's contents to w.
func (r *FakeRepo) Fetch(ctx context.Context, url string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.fetches[url]++
	r.mu.Unlock()

	a, ok := r.Archives[url]
	if !ok {
		return fmt.Errorf("HTTP 404: %s", url)
	}
	_, err := io.WriteString(w, a.Contents)
	return err
}

// Unpack looks the archive up by its contents and writes its tree to destDir.
func (r *FakeRepo) Unpack(ctx context.Context, archivePath, destDir string) error {
	a, err := r.find(archivePath)
	if err != nil {
		return err
	}
	if a.BrokenUnpack {
		return errors.New("dpkg-deb: error: archive is corrupt")
	}
	for name, contents := range a.Tree {
		p := filepath.Join(destDir, filepath.FromSlash(name))
		if err := r.Fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(r.Fs, p, contents, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ExtractFiles writes the requested files of the archive's tree to destDir
// and returns where each landed. Names are absolute install paths.
func (r *FakeRepo) ExtractFiles(ctx context.Context, archivePath, destDir string, names []string) (map[string]string, error) {
	a, err := r.find(archivePath)
	if err != nil {
		return nil, err
	}
	if a.BrokenUnpack {
		return nil, errors.New("dpkg-deb: error: archive is corrupt")
	}
	found := make(map[string]string)
	for _, name := range names {
		contents, ok := a.Tree[strings.TrimPrefix(name, "/")]
		if !ok {
			continue
		}
		p := filepath.Join(destDir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
		if err := r.Fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(r.Fs, p, contents, 0o644); err != nil {
			return nil, err
		}
		found[name] = p
	}
	return found, nil
}

func (r *FakeRepo) find(archivePath string) (Archive, error) {
	data, err := afero.ReadFile(r.Fs, archivePath)
	if err != nil {
		return Archive{}, err
	}
	for _, a := range r.Archives {
		if a.Contents == string(data) {
			return a, nil
		}
	}
	return Archive{}, fmt.Errorf("unknown archive %s", archivePath)
}

// Fetches returns how often url was fetched.
func (r *FakeRepo) Fetches(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches[url]
}

// TotalFetches returns the number of fetches across all URLs.
func (r *FakeRepo) TotalFetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.fetches {
		total += n
	}
	return total
}
