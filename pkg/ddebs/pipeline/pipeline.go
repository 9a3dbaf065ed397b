// Package pipeline wires the components into the two passes of a run: the
// scan pass, which crawls the repository and records the build IDs of every
// new archive, and the resolve pass, which turns missing-symbol requests into
// a symbol archive.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/ddebsyms/pkg/ddebs/sqlrepo"
)

var log = logging.Logger("ddebs/pipeline")

// Ledger records runs. The SQL backend provides one; with the JSON backend
// runs are only logged.
type Ledger interface {
	StartRun(ctx context.Context, kind string) (*sqlrepo.Run, error)
	FinishRun(ctx context.Context, run *sqlrepo.Run) error
}

func startRun(ctx context.Context, ledger Ledger, kind string) (*sqlrepo.Run, error) {
	if ledger == nil {
		return &sqlrepo.Run{ID: uuid.New(), Kind: kind}, nil
	}
	run, err := ledger.StartRun(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("starting %s run: %w", kind, err)
	}
	return run, nil
}

func finishRun(ledger Ledger, run *sqlrepo.Run, runErr error) {
	if runErr != nil {
		run.Error = runErr.Error()
	}
	log.Infow("run finished", "run", run.ID, "kind", run.Kind,
		"processed", run.Processed, "skipped", run.Skipped, "failed", run.Failed, "err", runErr)
	if ledger == nil {
		return
	}
	// The run's own context may be canceled; the ledger entry is still written.
	if err := ledger.FinishRun(context.Background(), run); err != nil {
		log.Warnw("recording run", "run", run.ID, "err", err)
	}
}
