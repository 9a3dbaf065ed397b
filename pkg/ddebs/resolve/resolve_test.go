package resolve_test

import (
	"testing"

	"github.com/storacha/ddebsyms/pkg/ddebs/buildid"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/resolve"
	"github.com/stretchr/testify/require"
)

const (
	rawFoo = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	rawBar = "0123456789abcdef0123456789abcdef01234567"
	rawBaz = "fedcba9876543210fedcba9876543210fedcba98"

	archiveA = "http://ddebs.example.com/pool/main/a/a/liba-dbgsym_1_amd64.ddeb"
	archiveB = "http://ddebs.example.com/pool/main/b/b/libb-dbgsym_1_amd64.ddeb"
)

func newIndex(t *testing.T, entries ...index.Entry) *index.Index {
	t.Helper()
	idx := &index.Index{Entries: map[string]index.Entry{}}
	for _, e := range entries {
		key, err := buildid.Normalize(e.BuildID)
		require.NoError(t, err)
		idx.Entries[key] = e
	}
	return idx
}

func TestSymbolFileName(t *testing.T) {
	require.Equal(t,
		"libfoo.so/"+rawFoo+"/libfoo.so.sym",
		resolve.SymbolFileName("/usr/lib/x86_64-linux-gnu/libfoo.so", rawFoo))
	require.Equal(t,
		"libc.so.6/ABC0/libc.so.6.sym",
		resolve.SymbolFileName("/lib/libc.so.6", "ABC0"))
}

func TestResolve(t *testing.T) {
	idx := newIndex(t,
		index.Entry{BuildID: rawFoo, Path: "/usr/lib/libfoo.so", Owner: archiveA},
		index.Entry{BuildID: rawBar, Path: "/usr/lib/libbar.so", Owner: archiveA},
		index.Entry{BuildID: rawBaz, Path: "/usr/lib/libbaz.so", Owner: archiveB},
	)

	t.Run("a single hit plans its owner", func(t *testing.T) {
		plan, stats := resolve.Resolve([]model.MissingSymbolRequest{{DebugFile: "libfoo.so", DebugID: rawFoo}}, idx)
		require.Equal(t, resolve.Plan{
			archiveA: {{Path: "/usr/lib/libfoo.so", SymbolName: "libfoo.so/" + rawFoo + "/libfoo.so.sym"}},
		}, plan)
		require.Equal(t, resolve.Stats{Requests: 1, Matched: 1}, stats)
	})

	t.Run("hits in one archive are grouped", func(t *testing.T) {
		plan, _ := resolve.Resolve([]model.MissingSymbolRequest{
			{DebugFile: "libfoo.so", DebugID: rawFoo},
			{DebugFile: "libbaz.so", DebugID: rawBaz},
			{DebugFile: "libbar.so", DebugID: rawBar},
		}, idx)
		require.Equal(t, []string{archiveA, archiveB}, plan.Owners())
		require.Equal(t, 3, plan.Targets())
		require.Equal(t, []resolve.Target{
			{Path: "/usr/lib/libbar.so", SymbolName: "libbar.so/" + rawBar + "/libbar.so.sym"},
			{Path: "/usr/lib/libfoo.so", SymbolName: "libfoo.so/" + rawFoo + "/libfoo.so.sym"},
		}, plan[archiveA])
	})

	t.Run("normalized request IDs match and name the symbol file", func(t *testing.T) {
		normalized, err := buildid.Normalize(rawFoo)
		require.NoError(t, err)
		plan, stats := resolve.Resolve([]model.MissingSymbolRequest{{DebugFile: "libfoo.so", DebugID: normalized}}, idx)
		require.Equal(t, 1, stats.Matched)
		require.Equal(t, "libfoo.so/"+normalized+"/libfoo.so.sym", plan[archiveA][0].SymbolName)
	})

	t.Run("misses and malformed IDs contribute nothing", func(t *testing.T) {
		plan, stats := resolve.Resolve([]model.MissingSymbolRequest{
			{DebugFile: "libqux.so", DebugID: "1111111111111111111111111111111111111111"},
			{DebugFile: "libbad.so", DebugID: "xyz"},
		}, idx)
		require.Empty(t, plan)
		require.Equal(t, resolve.Stats{Requests: 2, Unmatched: 1, Invalid: 1}, stats)
	})

	t.Run("duplicate requests are collapsed", func(t *testing.T) {
		req := model.MissingSymbolRequest{DebugFile: "libfoo.so", DebugID: rawFoo}
		plan, stats := resolve.Resolve([]model.MissingSymbolRequest{req, req}, idx)
		require.Equal(t, 1, stats.Requests)
		require.Len(t, plan[archiveA], 1)
	})
}
