// Package cmd defines the CLI for the dev-archive executable.
package cmd

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moruklabs/dev-archive/internal/app"
	"github.com/moruklabs/dev-archive/internal/archive"
)

type rootOptions struct {
	cfgFile   string
	dryRun    bool
	testMode  bool
	randomize bool
	number    int
}

// newRootCmd creates and configures the root command. The archiver runs
// with no subcommand: no args means a full archival pass.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dev-archive",
		Short: "Archives templated web targets under a local root.",
		Long: `dev-archive expands the templated targets of its configuration into
concrete URL/destination pairs and fetches each one that is not already
archived. Failures are collected and reported once at the end of the run;
partial failure still exits 0.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.cfgFile, "config", "config.yaml", "config file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print expanded URLs and paths, then exit")
	cmd.Flags().BoolVar(&opts.testMode, "test", false, "test mode: process only a subset of entries")
	cmd.Flags().BoolVar(&opts.randomize, "random", false, "shuffle entries before truncating (with --test)")
	cmd.Flags().IntVar(&opts.number, "number", 1, "number of entries to process in test mode")

	return cmd
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	asOf := time.Now().UTC()
	runID := uuid.NewString()

	application, err := app.New(opts.cfgFile, asOf)
	if err != nil {
		return err
	}
	defer application.Close()

	logger := application.Logger.With(zap.String("run_id", runID))

	cfg := application.Config
	entries, err := archive.Expand(cfg.Definitions, cfg.Targets, archive.ExpandOptions{
		AsOf:        asOf,
		TodayFormat: cfg.Expand.TodayFormat,
		GroupBy:     cfg.Expand.GroupBy,
	})
	if err != nil {
		return fmt.Errorf("expand targets: %w", err)
	}

	entries = restrict(entries, opts, logger)

	if opts.dryRun {
		printDryRun(cmd, entries)
		return nil
	}

	logger.Info("starting archival run",
		zap.Int("entries", len(entries)),
		zap.String("root", cfg.Archive.Root),
	)

	failures := application.Pipeline.Run(cmd.Context(), entries)

	logger.Info("archival run finished",
		zap.Int("entries", len(entries)),
		zap.Int("failures", len(failures)),
	)

	// Best-effort reporting out-of-band; partial failure still exits 0.
	application.Reporter.Report(cmd.Context(), runID, asOf, failures)
	return nil
}

// restrict applies the --test subset selection.
func restrict(entries []archive.Entry, opts *rootOptions, logger *zap.Logger) []archive.Entry {
	if !opts.testMode {
		return entries
	}
	if opts.randomize {
		logger.Info("test mode: shuffling entries")
		rand.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})
	}
	n := opts.number
	if n > len(entries) {
		logger.Warn("requested more entries than available, processing all",
			zap.Int("requested", n),
			zap.Int("available", len(entries)),
		)
		n = len(entries)
	}
	if n < 0 {
		n = 0
	}
	logger.Info("test mode: restricted entry set", zap.Int("entries", n))
	return entries[:n]
}

// printDryRun lists every expanded entry without touching the network or
// the filesystem.
func printDryRun(cmd *cobra.Command, entries []archive.Entry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no entries selected")
		return
	}
	for _, entry := range entries {
		if entry.Tag != "" {
			fmt.Fprintf(out, "%s -> %s [%s]\n", entry.URL, entry.Destination, entry.Tag)
			continue
		}
		fmt.Fprintf(out, "%s -> %s\n", entry.URL, entry.Destination)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
