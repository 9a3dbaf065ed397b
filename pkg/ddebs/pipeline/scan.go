package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
	"github.com/storacha/ddebsyms/pkg/ddebs/workers"
)

// Scanner turns an archive URL into its scan result.
type Scanner interface {
	Process(ctx context.Context, url string) (*model.PackageScan, error)
}

// ScanStats counts the work of a scan pass.
type ScanStats struct {
	Batches  int
	Archives int
	Scanned  int
	Failed   int
}

type scanCounters struct {
	batches, archives, scanned, failed atomic.Int64
}

func (c *scanCounters) snapshot() ScanStats {
	return ScanStats{
		Batches:  int(c.batches.Load()),
		Archives: int(c.archives.Load()),
		Scanned:  int(c.scanned.Load()),
		Failed:   int(c.failed.Load()),
	}
}

// Scan is the scan pass.
type Scan struct {
	Scanner Scanner
	Scanned dedup.Cache[model.PackageScan]
	// MarkDone is called once every archive of a batch has been scanned and
	// recorded. A batch with any failed archive is not marked, so it is
	// listed again next run. Nil means batches are not recorded.
	MarkDone func(ctx context.Context, batch model.Batch) error
	// Workers defaults to one per CPU; QueueSize to Workers.
	Workers   int
	QueueSize int
	Ledger    Ledger
	// Progress, if set, is called after every archive from worker goroutines.
	Progress func(ScanStats)
}

// Run scans every archive of every batch. Each result is recorded in the
// Scanned cache as soon as its archive is done. An archive that fails is
// logged and left out of the cache, to be retried next run; only failing to
// record a result, or ctx ending, stops the pass early.
func (s Scan) Run(ctx context.Context, batches iter.Seq[model.Batch]) (ScanStats, error) {
	run, err := startRun(ctx, s.Ledger, "scan")
	if err != nil {
		return ScanStats{}, err
	}
	log.Infow("starting scan", "run", run.ID)

	var counters scanCounters
	pool := workers.NewPool(ctx, s.Workers, s.QueueSize)
	var produceErr error

	for batch := range batches {
		counters.batches.Add(1)
		if len(batch.Archives) == 0 {
			if err := s.markDone(ctx, batch); err != nil {
				produceErr = err
				break
			}
			continue
		}
		if err := s.submitBatch(pool, &counters, batch); err != nil {
			// The pool has stopped; Wait reports why.
			break
		}
	}

	err = errors.Join(produceErr, pool.Wait())
	stats := counters.snapshot()
	run.Processed, run.Failed = stats.Scanned, stats.Failed
	finishRun(s.Ledger, run, err)
	return stats, err
}

func (s Scan) submitBatch(pool *workers.Pool, counters *scanCounters, batch model.Batch) error {
	var remaining atomic.Int64
	var failed atomic.Bool
	remaining.Store(int64(len(batch.Archives)))

	for _, archive := range batch.Archives {
		counters.archives.Add(1)
		err := pool.Submit(func(ctx context.Context) error {
			err := s.scanArchive(ctx, counters, archive.URL)
			if errors.Is(err, errArchiveFailed) {
				failed.Store(true)
				err = nil
			}
			if err != nil {
				return err
			}
			if s.Progress != nil {
				s.Progress(counters.snapshot())
			}
			if remaining.Add(-1) == 0 && !failed.Load() {
				return s.markDone(ctx, batch)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

var errArchiveFailed = errors.New("archive failed")

func (s Scan) scanArchive(ctx context.Context, counters *scanCounters, url string) error {
	scan, err := s.Scanner.Process(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		counters.failed.Add(1)
		log.Errorw("scanning archive failed, will retry next run", "url", url, "err", err)
		return errArchiveFailed
	}
	if err := s.Scanned.Set(ctx, url, *scan); err != nil {
		return fmt.Errorf("recording scan of %s: %w", url, err)
	}
	counters.scanned.Add(1)
	return nil
}

func (s Scan) markDone(ctx context.Context, batch model.Batch) error {
	if s.MarkDone == nil {
		return nil
	}
	if err := s.MarkDone(ctx, batch); err != nil {
		return fmt.Errorf("recording %s as listed: %w", batch.Dir.URL, err)
	}
	log.Debugw("batch complete", "dir", batch.Dir.URL, "archives", len(batch.Archives))
	return nil
}
