package index

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/storacha/ddebsyms/pkg/ddebs/dedup"
	"github.com/storacha/ddebsyms/pkg/ddebs/model"
)

// Export writes every fact in the scan cache to w as a line of the form
//
//	BuildID: <build id> <path> <archive url>
//
// in cache key order. Unlike the index, colliding facts are all written, so
// the output can be grepped for every archive that carries an identifier.
// It returns the number of lines written.
func Export(ctx context.Context, cache dedup.Cache[model.PackageScan], w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	err := cache.Range(ctx, func(owner string, scan model.PackageScan) error {
		for _, fact := range scan.Facts(owner) {
			if _, err := fmt.Fprintf(bw, "BuildID: %s %s %s\n", fact.BuildID, fact.Path, fact.Owner); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("exporting build IDs: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("exporting build IDs: %w", err)
	}
	return n, nil
}
