package symbols

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

// DefaultManifestPrefix names the manifest entry of the symbol archive.
const DefaultManifestPrefix = "ubuntusyms-1.0-Linux"

// ArchiveWriter builds a zip of symbol files in a temporary file next to its
// destination. Commit moves it into place only if it holds at least one
// symbol file, so a run that produced nothing leaves nothing behind.
type ArchiveWriter struct {
	fs     afero.Fs
	path   string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	tmp   afero.File
	zw    *zip.Writer
	names []string
	done  bool
}

// ArchiveOption configures an ArchiveWriter.
type ArchiveOption func(*ArchiveWriter)

// WithManifestPrefix sets the manifest name prefix.
func WithManifestPrefix(prefix string) ArchiveOption {
	return func(w *ArchiveWriter) {
		w.prefix = prefix
	}
}

// WithClock sets the clock used for the manifest name and entry times.
func WithClock(now func() time.Time) ArchiveOption {
	return func(w *ArchiveWriter) {
		w.now = now
	}
}

// NewArchiveWriter starts an archive that Commit will move to path.
func NewArchiveWriter(fsys afero.Fs, path string, opts ...ArchiveOption) (*ArchiveWriter, error) {
	w := &ArchiveWriter{
		fs:     fsys,
		path:   path,
		prefix: DefaultManifestPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary archive: %w", err)
	}
	w.tmp = tmp
	w.zw = zip.NewWriter(tmp)
	w.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return w, nil
}

// Add writes one symbol file. Artifacts without a name or contents are
// ignored. Add is safe for concurrent use.
func (w *ArchiveWriter) Add(a model.SymbolArtifact) error {
	if a.Name == "" || len(a.Contents) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("archive %s already closed", w.path)
	}
	if err := w.write(a.Name, a.Contents); err != nil {
		return err
	}
	w.names = append(w.names, a.Name)
	return nil
}

func (w *ArchiveWriter) write(name string, contents []byte) error {
	f, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: w.now(),
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Result describes a committed archive.
type Result struct {
	Path     string
	Manifest string
	Symbols  []string
}

// Commit adds the manifest, listing every symbol file, and moves the archive
// to its destination. If no symbol file was added the temporary archive is
// removed and the returned Result is nil.
func (w *ArchiveWriter) Commit() (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil, fmt.Errorf("archive %s already closed", w.path)
	}
	if len(w.names) == 0 {
		log.Infow("no symbols produced, not writing archive", "path", w.path)
		return nil, w.abort()
	}

	manifest := fmt.Sprintf("%s-%s-symbols.txt", w.prefix, w.now().Format("20060102150405"))
	if err := w.write(manifest, []byte(strings.Join(w.names, "\n")+"\n")); err != nil {
		w.abort()
		return nil, err
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		w.cleanup()
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.cleanup()
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		w.fs.Remove(w.tmp.Name())
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := w.fs.Rename(w.tmp.Name(), w.path); err != nil {
		w.fs.Remove(w.tmp.Name())
		return nil, fmt.Errorf("moving archive into place: %w", err)
	}

	log.Infow("wrote symbol archive", "path", w.path, "symbols", len(w.names), "manifest", manifest)
	return &Result{Path: w.path, Manifest: manifest, Symbols: append([]string(nil), w.names...)}, nil
}

// Abort discards the archive. It is a no-op after Commit.
func (w *ArchiveWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	return w.abort()
}

func (w *ArchiveWriter) abort() error {
	w.done = true
	w.zw.Close()
	return w.cleanup()
}

func (w *ArchiveWriter) cleanup() error {
	w.tmp.Close()
	if err := w.fs.Remove(w.tmp.Name()); err != nil {
		return fmt.Errorf("removing temporary archive: %w", err)
	}
	return nil
}
