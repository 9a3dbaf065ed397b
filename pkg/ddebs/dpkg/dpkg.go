// Package dpkg unpacks Debian binary packages with dpkg-deb.
package dpkg

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/types"
)

var log = logging.Logger("ddebs/dpkg")

// DefaultTool is the program looked up on PATH when no path is configured.
const DefaultTool = "dpkg-deb"

// maxFileSize bounds a single extracted file. Larger files fail the
// extraction rather than being cut short.
var maxFileSize int64 = 4 << 30

// ErrFileTooLarge is returned when an archive member exceeds maxFileSize.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// Deb runs dpkg-deb against package archives.
type Deb struct {
	tool string
}

// New resolves the dpkg-deb program. An empty tool means DefaultTool on PATH.
// A tool that cannot be found is an ErrMissingTool.
func New(tool string) (Deb, error) {
	if tool == "" {
		tool = DefaultTool
	}
	resolved, err := exec.LookPath(tool)
	if err != nil {
		return Deb{}, types.ErrMissingTool{Tool: tool, Err: err}
	}
	return Deb{tool: resolved}, nil
}

// Unpack extracts the whole file tree of archivePath into destDir.
func (d Deb) Unpack(ctx context.Context, archivePath, destDir string) error {
	cmd := exec.CommandContext(ctx, d.tool, "-x", archivePath, destDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("dpkg-deb -x: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ExtractFiles extracts only the named files from archivePath into destDir,
// keeping their relative layout. Names are absolute install paths such as
// "/usr/lib/libfoo.so". A name that is a hardlink in the archive is extracted
// with the contents of its target. It returns the local path of every file
// found; a requested file the archive does not contain is absent from the
// result.
func (d Deb) ExtractFiles(ctx context.Context, archivePath, destDir string, names []string) (map[string]string, error) {
	want := make(map[string][]string, len(names))
	for _, n := range names {
		n = path.Clean("/" + n)
		want[n] = []string{n}
	}

	var (
		found map[string]string
		links map[string][]string
	)
	err := d.stream(ctx, archivePath, func(tr *tar.Reader) error {
		var err error
		found, links, err = extract(tr, destDir, want)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Links whose target was not itself requested need a second pass, since
	// the target precedes the link in the stream.
	if len(links) > 0 {
		err := d.stream(ctx, archivePath, func(tr *tar.Reader) error {
			more, _, err := extract(tr, destDir, links)
			maps.Copy(found, more)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	for name := range want {
		if _, ok := found[name]; !ok {
			log.Warnw("requested file not in archive", "archive", archivePath, "path", name)
		}
	}
	return found, nil
}

// stream runs fn over the data tarball of archivePath.
func (d Deb) stream(ctx context.Context, archivePath string, fn func(*tar.Reader) error) error {
	cmd := exec.CommandContext(ctx, d.tool, "--fsys-tarfile", archivePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("dpkg-deb --fsys-tarfile: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting dpkg-deb: %w", err)
	}

	readErr := fn(tar.NewReader(stdout))
	// Drain so dpkg-deb is not killed by a closed pipe.
	io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if readErr != nil {
		return fmt.Errorf("reading data of %s: %w", archivePath, readErr)
	}
	if waitErr != nil {
		return fmt.Errorf("dpkg-deb --fsys-tarfile: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func memberName(name string) string {
	return path.Clean("/" + strings.TrimPrefix(name, "."))
}

// extract writes each member named in want to the local path of every install
// name it maps to, and returns those local paths by install name. A requested
// hardlink is resolved when its target was already written; otherwise it is
// returned in links, keyed by target, for a later pass.
func extract(tr *tar.Reader, destDir string, want map[string][]string) (found map[string]string, links map[string][]string, err error) {
	total := 0
	for _, dests := range want {
		total += len(dests)
	}
	found = make(map[string]string, total)
	links = make(map[string][]string)
	written := make(map[string]string)

	for len(found) < total {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		name := memberName(hdr.Name)
		dests, ok := want[name]
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeReg:
			if hdr.Size > maxFileSize {
				return nil, nil, fmt.Errorf("%s is %d bytes: %w", name, hdr.Size, ErrFileTooLarge)
			}
			first := localPath(destDir, dests[0])
			if err := writeFile(first, tr); err != nil {
				return nil, nil, err
			}
			written[name] = first
			found[dests[0]] = first
			for _, dest := range dests[1:] {
				if err := linkTo(first, dest, destDir, found); err != nil {
					return nil, nil, err
				}
			}
		case tar.TypeLink:
			target := memberName(hdr.Linkname)
			src, ok := written[target]
			if !ok {
				links[target] = append(links[target], dests...)
				// Not expected in this pass.
				total -= len(dests)
				continue
			}
			for _, dest := range dests {
				if err := linkTo(src, dest, destDir, found); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return found, links, nil
}

func localPath(destDir, name string) string {
	return filepath.Join(destDir, filepath.FromSlash(name[1:]))
}

// linkTo copies the already extracted src to the local path of dest.
func linkTo(src, dest, destDir string, found map[string]string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()
	target := localPath(destDir, dest)
	if err := writeFile(target, f); err != nil {
		return err
	}
	found[dest] = target
	return nil
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxFileSize+1))
	if err == nil && n > maxFileSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		f.Close()
		os.Remove(target)
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return f.Close()
}
