package pipeline_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/crawl"
	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/dpkg"
	"github.com/storacha/ddebsyms/pkg/ddebs/fetch"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/pipeline"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/probe"
	"github.com/storacha/ddebsyms/pkg/ddebs/scans/walker"
	"github.com/storacha/ddebsyms/pkg/ddebs/symbols"
	"github.com/storacha/ddebsyms/pkg/ddebs/testutil"
	"github.com/stretchr/testify/require"
)

// autoindexServer serves files under /pool/main/ with an HTML listing for
// every directory, in the style of a web server's automatic index.
func autoindexServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data, ok := files[r.URL.Path]; ok {
			w.Write(data)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		var children []string
		for p := range files {
			rest, ok := strings.CutPrefix(p, r.URL.Path)
			if !ok {
				continue
			}
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i+1]
			}
			if !slices.Contains(children, rest) {
				children = append(children, rest)
			}
		}
		if len(children) == 0 {
			http.NotFound(w, r)
			return
		}
		slices.Sort(children)
		fmt.Fprintf(w, "<html><body><h1>Index of %s</h1><pre><a href=\"../\">../</a>\n", r.URL.Path)
		for _, c := range children {
			fmt.Fprintf(w, "<a href=\"%s\">%s</a>  01-Jan-2024 00:00  -\n", c, c)
		}
		fmt.Fprint(w, "</pre></body></html>")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEndToEnd(t *testing.T) {
	tool, err := dpkg.New("")
	if err != nil {
		t.Skip("dpkg-deb not installed")
	}
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not installed")
	}

	const id = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	server := autoindexServer(t, map[string][]byte{
		"/pool/main/f/foo/libfoo1-dbgsym_1.0_amd64.ddeb": testutil.Deb(map[string][]byte{
			"usr/lib/x86_64-linux-gnu/libfoo.so": testutil.ELFWithBuildID(id),
			"usr/share/doc/libfoo1/changelog":    []byte("libfoo (1.0) unstable; urgency=low\n"),
		}),
		"/pool/main/f/foo/libfoo1-dbgsym_1.0_arm64.ddeb": []byte("not fetched"),
	})
	poolRoot := server.URL + "/pool/main/"
	owner := poolRoot + "f/foo/libfoo1-dbgsym_1.0_amd64.ddeb"

	work := t.TempDir()
	fsys := afero.NewOsFs()
	fetcher := fetch.NewHTTPFetcher()
	listed := dedup.OpenFile[bool](fsys, filepath.Join(work, "listed.json"))
	scanned := dedup.OpenFile[model.PackageScan](fsys, filepath.Join(work, "scanned.json"))
	crawler := crawl.Crawler{Lister: crawl.HTMLLister{Fetcher: fetcher}, Listed: listed, Scanned: scanned}

	scan := pipeline.Scan{
		Scanner: scans.Scanner{
			Fs:       fsys,
			TempDir:  filepath.Join(work, "scratch"),
			Fetcher:  fetcher,
			Unpacker: tool,
			Prober:   probe.ELF{},
			WalkerFn: walker.WalkFiles,
		},
		Scanned:  scanned,
		MarkDone: crawler.MarkListed,
		Workers:  2,
	}
	stats, err := scan.Run(t.Context(), crawler.Crawl(t.Context(), poolRoot))
	require.NoError(t, err)
	require.Equal(t, pipeline.ScanStats{Batches: 1, Archives: 1, Scanned: 1}, stats)

	store := index.Store{Fs: fsys, Path: filepath.Join(work, "index.json")}
	idx, _, err := store.Load(t.Context(), scanned)
	require.NoError(t, err)
	entry, ok := idx.Lookup(id)
	require.True(t, ok)
	require.Equal(t, "/usr/lib/x86_64-linux-gnu/libfoo.so", entry.Path)
	require.Equal(t, owner, entry.Owner)

	out := filepath.Join(work, "out", "symbols.zip")
	res, err := pipeline.Resolve{
		Index: idx,
		Dumper: symbols.Dumper{
			Fs:        fsys,
			TempDir:   filepath.Join(work, "scratch"),
			Fetcher:   fetcher,
			Extractor: tool,
			Converter: moduleConverter{},
		},
		Fs:     fsys,
		Output: out,
	}.Run(t.Context(), []model.MissingSymbolRequest{
		{DebugFile: "libfoo.so", DebugID: id},
		{DebugFile: "libmissing.so", DebugID: strings.Repeat("ab", 20)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Matched)
	require.Equal(t, 1, res.Stats.Unmatched)

	name := "libfoo.so/" + id + "/libfoo.so.sym"
	files := readZip(t, fsys, out)
	require.Len(t, files, 2)
	require.Equal(t, "MODULE Linux x86_64 libfoo.so\n", files[name])
	require.Equal(t, name+"\n", manifestOf(t, files))

	scratch, err := afero.ReadDir(fsys, filepath.Join(work, "scratch"))
	require.NoError(t, err)
	require.Empty(t, scratch)

	t.Run("a second scan fetches nothing", func(t *testing.T) {
		listed := dedup.OpenFile[bool](fsys, filepath.Join(work, "listed.json"))
		scanned := dedup.OpenFile[model.PackageScan](fsys, filepath.Join(work, "scanned.json"))
		crawler := crawl.Crawler{Lister: crawl.HTMLLister{Fetcher: fetcher}, Listed: listed, Scanned: scanned}
		scan.Scanned = scanned
		scan.MarkDone = crawler.MarkListed
		stats, err := scan.Run(t.Context(), crawler.Crawl(t.Context(), poolRoot))
		require.NoError(t, err)
		require.Zero(t, stats.Archives)
		require.Zero(t, stats.Batches)
	})
}
