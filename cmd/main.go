package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("ddebs/main")

func env(name string) []string {
	return []string{"DDEBSYMS_" + name}
}

// globalFlags apply to every command and override the config file.
var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file. Defaults to ~/.ddebsyms/config.yaml.",
		EnvVars: env("CONFIG"),
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Log level: debug, info, warn or error.",
		EnvVars: env("LOG_LEVEL"),
	},
	&cli.StringFlag{
		Name:    "state-dir",
		Usage:   "Directory holding the caches, the index and downloaded reports.",
		EnvVars: env("STATE_DIR"),
	},
	&cli.StringFlag{
		Name:    "backend",
		Usage:   "Cache backend: json, sqlite or postgres.",
		EnvVars: env("BACKEND"),
	},
	&cli.StringFlag{
		Name:    "dsn",
		Usage:   "Database for the sqlite or postgres backend.",
		EnvVars: env("DSN"),
	},
	&cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Timeout of a single download.",
		EnvVars: env("TIMEOUT"),
	},
	&cli.StringFlag{
		Name:    "dpkg",
		Usage:   "Path to dpkg-deb.",
		EnvVars: env("DPKG"),
	},
}

func main() {
	app := &cli.App{
		Name:  "ddebsyms",
		Usage: "index build IDs of Ubuntu debug symbol packages and produce symbol files for crash reports",
		Flags: globalFlags,
		Before: func(cCtx *cli.Context) error {
			// A missing .env file is fine.
			_ = godotenv.Load()
			if err := logging.SetLogLevel("*", cCtx.String("log-level")); err != nil {
				return fmt.Errorf("setting log level: %w", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			scanCommand,
			indexCommand,
			lookupCommand,
			planCommand,
			resolveCommand,
			runsCommand,
		},
	}

	// set up a context that is canceled when a command is interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up a signal handler to cancel the context
	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			log.Info("received interrupt signal, finishing in-flight work")
			cancel()
		case <-ctx.Done():
		}

		// Allow any further SIGTERM or SIGINT to kill process
		signal.Stop(interrupt)
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
