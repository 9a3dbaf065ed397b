package scans_test

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/probe"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/walker"
	"github.com/storacha/ddebsyms/pkg/ddebs/testutil"
	"github.com/stretchr/testify/require"
)

const (
	idFoo = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	idBar = "0123456789abcdef0123456789abcdef01234567"
	url   = "http://ddebs.example.com/pool/main/f/foo/libfoo1-dbgsym_1.0_amd64.ddeb"
)

type failingProber struct {
	scans.Prober
	failOn string
}

func (p failingProber) Probe(fsys fs.FS, name string) (string, error) {
	if name == p.failOn {
		return "", errors.New("readelf: Error: not an ELF file - it has the wrong magic bytes")
	}
	return p.Prober.Probe(fsys, name)
}

func newScanner(t *testing.T, archives map[string]testutil.Archive) (scans.Scanner, afero.Fs) {
	memFS := afero.NewMemMapFs()
	repo := testutil.NewFakeRepo(memFS, archives)
	return scans.Scanner{
		Fs:       memFS,
		TempDir:  "/scratch",
		Fetcher:  repo,
		Unpacker: repo,
		Prober:   probe.ELF{},
		WalkerFn: walker.WalkFiles,
	}, memFS
}

func requireScratchEmpty(t *testing.T, memFS afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(memFS, "/scratch")
	require.NoError(t, err)
	require.Empty(t, entries, "scratch directories must be removed")
}

func TestProcess(t *testing.T) {
	t.Run("reports every binary with an absolute install path", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{
				"usr/lib/x86_64-linux-gnu/libfoo.so.1":      testutil.ELFWithBuildID(idFoo),
				"usr/lib/debug/.build-id/01/23456789.debug": testutil.ELFWithBuildID(idBar),
				"usr/share/doc/libfoo1-dbgsym/copyright":    []byte("GPL"),
			}},
		})

		scan, err := scanner.Process(t.Context(), url)
		require.NoError(t, err)
		require.ElementsMatch(t, []model.FileID{
			{Path: "/usr/lib/x86_64-linux-gnu/libfoo.so.1", BuildID: idFoo},
			{Path: "/usr/lib/debug/.build-id/01/23456789.debug", BuildID: idBar},
		}, scan.Files)
		require.False(t, scan.ScannedAt.IsZero())
		require.NotEmpty(t, scan.Digest)
		requireScratchEmpty(t, memFS)
	})

	t.Run("is idempotent for a stable archive", func(t *testing.T) {
		scanner, _ := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{"lib/libfoo.so": testutil.ELFWithBuildID(idFoo)}},
		})
		first, err := scanner.Process(t.Context(), url)
		require.NoError(t, err)
		second, err := scanner.Process(t.Context(), url)
		require.NoError(t, err)
		require.Equal(t, first.Files, second.Files)
		require.Equal(t, first.Digest, second.Digest)
	})

	t.Run("reports an empty list for an archive without binaries", func(t *testing.T) {
		scanner, _ := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{"usr/share/doc/README": []byte("docs")}},
		})
		scan, err := scanner.Process(t.Context(), url)
		require.NoError(t, err)
		require.NotNil(t, scan.Files)
		require.Empty(t, scan.Files)
	})

	t.Run("skips a file whose probe fails", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{
				"lib/libfoo.so": testutil.ELFWithBuildID(idFoo),
				"lib/libbar.so": testutil.ELFWithBuildID(idBar),
			}},
		})
		scanner.Prober = failingProber{Prober: probe.ELF{}, failOn: "lib/libbar.so"}

		scan, err := scanner.Process(t.Context(), url)
		require.NoError(t, err)
		require.Equal(t, []model.FileID{{Path: "/lib/libfoo.so", BuildID: idFoo}}, scan.Files)
		requireScratchEmpty(t, memFS)
	})

	t.Run("fails when the fetch fails", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{})
		_, err := scanner.Process(t.Context(), url)
		require.ErrorContains(t, err, "fetching "+url)
		requireScratchEmpty(t, memFS)
	})

	t.Run("fails when unpacking fails", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{
			url: {BrokenUnpack: true},
		})
		_, err := scanner.Process(t.Context(), url)
		require.ErrorContains(t, err, "unpacking "+url)
		requireScratchEmpty(t, memFS)
	})

	t.Run("fails when the walk fails", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{"lib/libfoo.so": testutil.ELFWithBuildID(idFoo)}},
		})
		scanner.WalkerFn = func(fsys fs.FS, root string, visitor walker.FileVisitor) error {
			return errors.New("input/output error")
		}
		_, err := scanner.Process(t.Context(), url)
		require.ErrorContains(t, err, "scanning "+url+": input/output error")
		requireScratchEmpty(t, memFS)
	})

	t.Run("cleans up when interrupted", func(t *testing.T) {
		scanner, memFS := newScanner(t, map[string]testutil.Archive{
			url: {Tree: map[string][]byte{"lib/libfoo.so": testutil.ELFWithBuildID(idFoo)}},
		})
		ctx, cancel := context.WithCancel(t.Context())
		scanner.WalkerFn = func(fsys fs.FS, root string, visitor walker.FileVisitor) error {
			cancel()
			return walker.WalkFiles(fsys, root, visitor)
		}
		_, err := scanner.Process(ctx, url)
		require.ErrorIs(t, err, context.Canceled)
		requireScratchEmpty(t, memFS)
	})
}
