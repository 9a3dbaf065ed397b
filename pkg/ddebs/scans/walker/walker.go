package walker

import (
	"fmt"
	"io/fs"
	"path"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ddebs/scans/walker")

// FileVisitor is called for every regular file found during a walk.
type FileVisitor interface {
	VisitFile(path string, dirEntry fs.DirEntry) error
}

// FileVisitorFunc adapts a function to a FileVisitor.
type FileVisitorFunc func(path string, dirEntry fs.DirEntry) error

func (f FileVisitorFunc) VisitFile(path string, dirEntry fs.DirEntry) error {
	return f(path, dirEntry)
}

// WalkFiles walks the file system rooted at root, calling the visitor for each
// regular file. Symlinks, devices and other special files are not visited.
func WalkFiles(fsys fs.FS, root string, visitor FileVisitor) error {
	if !fs.ValidPath(root) {
		return fmt.Errorf("invalid path: %s", root)
	}
	info, err := fs.Stat(fsys, root)
	if err != nil {
		return fmt.Errorf("statting root: %w", err)
	}
	return walkDir(fsys, root, fs.FileInfoToDirEntry(info), visitor)
}

// walkDir recursively descends the file system, calling the visitor for each file.
func walkDir(fsys fs.FS, name string, d fs.DirEntry, visitor FileVisitor) error {
	if !d.IsDir() {
		if !d.Type().IsRegular() {
			log.Debugf("Skipping non-regular file %s", name)
			return nil
		}
		return visitor.VisitFile(name, d)
	}

	log.Debugf("Walking %s", name)
	dirEntries, err := fs.ReadDir(fsys, name)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", name, err)
	}

	for _, dirEntry := range dirEntries {
		if err := walkDir(fsys, path.Join(name, dirEntry.Name()), dirEntry, visitor); err != nil {
			return err
		}
	}
	return nil
}
