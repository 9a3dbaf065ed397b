// Package resolve matches missing-symbol requests against the build ID index
// and groups the hits by the archive that has to be fetched for them.
package resolve

import (
	"cmp"
	"maps"
	"path"
	"slices"

	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/buildid"
	"github.com/storacha/ddebsyms/pkg/ddebs/index"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

var log = logging.Logger("ddebs/resolve")

// Index is the lookup side of index.Index.
type Index interface {
	Lookup(id string) (index.Entry, bool)
}

// Target is one file to extract from an archive and convert.
type Target struct {
	// Path is the install path of the binary inside the archive.
	Path string
	// SymbolName is where the converted symbols go in the output archive.
	SymbolName string
}

// Plan maps archive URLs to the files needed from them.
type Plan map[string][]Target

// Owners returns the archive URLs of the plan in sorted order.
func (p Plan) Owners() []string {
	return slices.Sorted(maps.Keys(p))
}

// Targets returns the total number of files in the plan.
func (p Plan) Targets() int {
	n := 0
	for _, ts := range p {
		n += len(ts)
	}
	return n
}

type Stats struct {
	Requests  int
	Matched   int
	Unmatched int
	Invalid   int
}

// SymbolFileName returns the output archive path for the symbols of the
// binary at p: "<basename>/<id>/<basename>.sym". id is used exactly as the
// crash reporter gave it.
func SymbolFileName(p, id string) string {
	base := path.Base(p)
	return base + "/" + id + "/" + base + ".sym"
}

// Resolve looks every request up in idx. Hits are grouped by owning archive so
// each archive is fetched once; requests that miss are dropped and counted.
// Duplicate requests are collapsed. Targets within an archive are sorted by
// path.
func Resolve(reqs []model.MissingSymbolRequest, idx Index) (Plan, Stats) {
	plan := Plan{}
	seen := make(map[model.MissingSymbolRequest]bool, len(reqs))
	planned := make(map[string]bool)
	var stats Stats

	for _, req := range reqs {
		if seen[req] {
			continue
		}
		seen[req] = true
		stats.Requests++

		if _, err := buildid.Canonical(req.DebugID); err != nil {
			stats.Invalid++
			log.Debugw("ignoring malformed debug ID", "debug_file", req.DebugFile, "debug_id", req.DebugID)
			continue
		}
		entry, ok := idx.Lookup(req.DebugID)
		if !ok {
			stats.Unmatched++
			continue
		}
		stats.Matched++

		target := Target{Path: entry.Path, SymbolName: SymbolFileName(entry.Path, req.DebugID)}
		key := entry.Owner + "\x00" + target.SymbolName
		if planned[key] {
			continue
		}
		planned[key] = true
		plan[entry.Owner] = append(plan[entry.Owner], target)
	}

	for _, targets := range plan {
		slices.SortFunc(targets, func(a, b Target) int {
			return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.SymbolName, b.SymbolName))
		})
	}
	log.Infow("resolved missing symbols",
		"requests", stats.Requests, "matched", stats.Matched, "unmatched", stats.Unmatched,
		"invalid", stats.Invalid, "archives", len(plan))
	return plan, stats
}
