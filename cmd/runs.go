package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/storacha/ddebsyms/internal/cmdutil"
	"github.com/urfave/cli/v2"
)

var runsCommand = &cli.Command{
	Name:  "runs",
	Usage: "List recent scan and resolve runs. Requires the sqlite or postgres backend.",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
			Usage: "Number of runs to show.",
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx := cCtx.Context
		cfg := cmdutil.MustGetConfig(cCtx)
		state := cmdutil.MustOpenState(ctx, cfg)
		defer state.Close()
		if state.Runs == nil {
			return fmt.Errorf("the %s backend keeps no run history", cfg.Backend)
		}

		runs, err := state.Runs.ListRuns(ctx, cCtx.Int("limit"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTARTED\tDURATION\tPROCESSED\tSKIPPED\tFAILED\tERROR")
		for _, r := range runs {
			duration := "running"
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.Kind, r.StartedAt.Format(time.DateTime),
				duration, r.Processed, r.Skipped, r.Failed, r.Error)
		}
		return w.Flush()
	},
}
