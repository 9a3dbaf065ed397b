package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/objstore"
	"github.com/storacha/ddebsyms/pkg/ddebs/resolve"
	"github.com/storacha/ddebsyms/pkg/ddebs/symbols"
	"github.com/storacha/ddebsyms/pkg/ddebs/workers"
)

// DefaultResolveWorkers keeps the load on the repository and the symbol
// server modest.
const DefaultResolveWorkers = 4

// Dumper produces the symbol files for the planned targets of one archive.
type Dumper interface {
	Process(ctx context.Context, owner string, targets []resolve.Target) ([]model.SymbolArtifact, error)
}

// ResolveStats counts the work of a resolve pass.
type ResolveStats struct {
	resolve.Stats
	Archives       int
	ArchivesFailed int
	Symbols        int
}

// Resolve is the resolve pass.
type Resolve struct {
	Index  resolve.Index
	Dumper Dumper
	// Fs and Output locate the symbol archive.
	Fs             afero.Fs
	Output         string
	ManifestPrefix string
	// Workers defaults to DefaultResolveWorkers.
	Workers  int
	Ledger   Ledger
	Uploader objstore.Uploader
	// Progress, if set, is called after every archive from worker goroutines.
	Progress func(ResolveStats)
}

// Result is the outcome of a resolve pass. Archive is nil when no symbol file
// was produced.
type Result struct {
	Stats     ResolveStats
	Archive   *symbols.Result
	ObjectKey string
}

// Plan resolves reqs against the index without fetching anything.
func (r Resolve) Plan(reqs []model.MissingSymbolRequest) (resolve.Plan, resolve.Stats) {
	return resolve.Resolve(reqs, r.Index)
}

// Run resolves reqs, converts the planned files archive by archive and writes
// the symbol archive. An archive that fails is logged and skipped. The symbol
// archive is written only if the pass completes and produced at least one
// symbol file.
func (r Resolve) Run(ctx context.Context, reqs []model.MissingSymbolRequest) (*Result, error) {
	run, err := startRun(ctx, r.Ledger, "resolve")
	if err != nil {
		return nil, err
	}

	plan, planStats := r.Plan(reqs)
	res := &Result{Stats: ResolveStats{Stats: planStats, Archives: len(plan)}}
	log.Infow("starting resolve", "run", run.ID, "archives", len(plan), "files", plan.Targets())

	err = r.run(ctx, plan, res)
	run.Processed = res.Stats.Archives - res.Stats.ArchivesFailed
	run.Failed = res.Stats.ArchivesFailed
	run.Skipped = planStats.Unmatched + planStats.Invalid
	finishRun(r.Ledger, run, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r Resolve) run(ctx context.Context, plan resolve.Plan, res *Result) error {
	var opts []symbols.ArchiveOption
	if r.ManifestPrefix != "" {
		opts = append(opts, symbols.WithManifestPrefix(r.ManifestPrefix))
	}
	writer, err := symbols.NewArchiveWriter(r.Fs, r.Output, opts...)
	if err != nil {
		return err
	}

	workerCount := r.Workers
	if workerCount < 1 {
		workerCount = DefaultResolveWorkers
	}
	var failed, produced atomic.Int64
	progress := func() {
		if r.Progress == nil {
			return
		}
		stats := res.Stats
		stats.ArchivesFailed = int(failed.Load())
		stats.Symbols = int(produced.Load())
		r.Progress(stats)
	}

	pool := workers.NewPool(ctx, workerCount, workerCount)
	for _, owner := range plan.Owners() {
		targets := plan[owner]
		err := pool.Submit(func(ctx context.Context) error {
			artifacts, err := r.Dumper.Process(ctx, owner, targets)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				log.Errorw("processing archive failed", "url", owner, "err", err)
				progress()
				return nil
			}
			for _, a := range artifacts {
				if err := writer.Add(a); err != nil {
					return fmt.Errorf("writing symbol archive: %w", err)
				}
				produced.Add(1)
			}
			progress()
			return nil
		})
		if err != nil {
			break
		}
	}
	if err := pool.Wait(); err != nil {
		return errors.Join(err, writer.Abort())
	}
	res.Stats.ArchivesFailed = int(failed.Load())
	res.Stats.Symbols = int(produced.Load())

	archive, err := writer.Commit()
	if err != nil {
		return err
	}
	res.Archive = archive
	if archive == nil || r.Uploader == nil {
		return nil
	}
	key, err := r.Uploader.Upload(ctx, archive.Path)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", archive.Path, err)
	}
	res.ObjectKey = key
	return nil
}
