package walker_test

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/walker"
	"github.com/stretchr/testify/require"
)

func TestWalkFiles(t *testing.T) {
	t.Run("visits every regular file in the tree", func(t *testing.T) {
		memFS := afero.NewMemMapFs()
		memFS.MkdirAll("dir1/subdir1", 0755)
		memFS.MkdirAll("empty", 0755)
		afero.WriteFile(memFS, "file1.txt", []byte("contents of file1.txt"), 0644)
		afero.WriteFile(memFS, "dir1/file2.txt", []byte("contents of file2.txt"), 0644)
		afero.WriteFile(memFS, "dir1/subdir1/file3.txt", []byte("contents of file3.txt"), 0644)

		var visited []string
		err := walker.WalkFiles(afero.NewIOFS(memFS), ".", walker.FileVisitorFunc(func(path string, d fs.DirEntry) error {
			visited = append(visited, path)
			return nil
		}))
		require.NoError(t, err, "WalkFiles should not return an error")
		require.ElementsMatch(t, []string{
			"file1.txt",
			"dir1/file2.txt",
			"dir1/subdir1/file3.txt",
		}, visited, "Visited files should match expected paths")
	})

	t.Run("skips symlinks", func(t *testing.T) {
		fsys := fstest.MapFS{
			"lib/libfoo.so.1": {Data: []byte("elf")},
			"lib/libfoo.so":   {Data: []byte("libfoo.so.1"), Mode: fs.ModeSymlink},
		}
		var visited []string
		err := walker.WalkFiles(fsys, ".", walker.FileVisitorFunc(func(path string, d fs.DirEntry) error {
			visited = append(visited, path)
			return nil
		}))
		require.NoError(t, err)
		require.Equal(t, []string{"lib/libfoo.so.1"}, visited)
	})

	t.Run("stops on the first visitor error", func(t *testing.T) {
		fsys := fstest.MapFS{
			"a": {Data: []byte("a")},
			"b": {Data: []byte("b")},
		}
		stop := errors.New("stop")
		var visited int
		err := walker.WalkFiles(fsys, ".", walker.FileVisitorFunc(func(path string, d fs.DirEntry) error {
			visited++
			return stop
		}))
		require.ErrorIs(t, err, stop)
		require.Equal(t, 1, visited)
	})

	t.Run("rejects an invalid root", func(t *testing.T) {
		err := walker.WalkFiles(fstest.MapFS{}, "/abs", walker.FileVisitorFunc(func(string, fs.DirEntry) error { return nil }))
		require.ErrorContains(t, err, "invalid path")
	})

	t.Run("fails when the root does not exist", func(t *testing.T) {
		err := walker.WalkFiles(fstest.MapFS{}, "missing", walker.FileVisitorFunc(func(string, fs.DirEntry) error { return nil }))
		require.ErrorContains(t, err, "statting root")
	})
}
