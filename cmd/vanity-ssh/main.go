package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mahdiidarabi/vanity-ssh/internal/config"
	"github.com/mahdiidarabi/vanity-ssh/internal/keystore"
	"github.com/mahdiidarabi/vanity-ssh/internal/logging"
	"github.com/mahdiidarabi/vanity-ssh/internal/notify"
	"github.com/mahdiidarabi/vanity-ssh/internal/progress"
	"github.com/mahdiidarabi/vanity-ssh/internal/telemetry"
	"github.com/mahdiidarabi/vanity-ssh/pkg/vanityssh"
)

const serviceName = "vanity-ssh"

type options struct {
	threads        int
	outDir         string
	ntfy           string
	stopAfterMatch bool
	patternsFile   string
}

func main() {
	cfg := config.FromEnv()
	opts := options{
		threads:        cfg.Threads,
		outDir:         cfg.OutDir,
		ntfy:           cfg.NotifyEndpoint,
		stopAfterMatch: cfg.StopAfterMatch,
	}

	rootCmd := &cobra.Command{
		Use:   "vanity-ssh [pattern...]",
		Short: "Search for Ed25519 SSH keys whose public key matches a pattern",
		Long: `Generates Ed25519 keys until the base64 token of the OpenSSH public key
matches one of the given patterns. A plain pattern is a suffix; a pattern
wrapped in slashes (/^AAAA.*xyz/) is a regular expression. Matching keys are
written to the output directory as <name> and <name>.pub.`,
		Example: `  vanity-ssh yee
  vanity-ssh -t 8 --stop-after-match abc "/[0-9]{4}$/"
  vanity-ssh -f patterns.txt --ntfy my-topic`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}

	flags := rootCmd.Flags()
	flags.IntVarP(&opts.threads, "threads", "t", opts.threads, "number of worker threads")
	flags.StringVarP(&opts.outDir, "out", "o", opts.outDir, "directory matching keys are written to")
	flags.StringVar(&opts.ntfy, "ntfy", opts.ntfy, "notify on match: ntfy topic, ntfy topic URL or nats://host:port/subject")
	flags.BoolVar(&opts.stopAfterMatch, "stop-after-match", opts.stopAfterMatch, "stop after the first matching key")
	flags.StringVarP(&opts.patternsFile, "patterns-file", "f", "", "read additional patterns from a text or JSON file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string) error {
	raws := append([]string(nil), args...)
	if opts.patternsFile != "" {
		fromFile, err := vanityssh.ParsePatternFile(opts.patternsFile)
		if err != nil {
			return fmt.Errorf("failed to read patterns: %w", err)
		}
		raws = append(raws, fromFile...)
	}
	if len(raws) == 0 {
		return fmt.Errorf("%w: pass patterns as arguments or with --patterns-file", vanityssh.ErrNoPatterns)
	}

	patterns, err := vanityssh.CompilePatterns(raws)
	if err != nil {
		return err
	}
	if opts.threads < 1 {
		return fmt.Errorf("%w: --threads %d", vanityssh.ErrInvalidThreadCount, opts.threads)
	}

	display := progress.New(os.Stderr)
	logger := logging.Init(serviceName, display)
	runID := uuid.NewString()

	shutdownMetrics := telemetry.InitMetrics(ctx, serviceName, runID)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	d := vanityssh.NewDispatcher().
		WithRunID(runID).
		WithStopOnMatch(opts.stopAfterMatch).
		WithSaver(keystore.New(opts.outDir)).
		WithDisplay(display).
		WithLogger(logger)

	if opts.ntfy != "" {
		if _, err := notify.ParseEndpoint(opts.ntfy); err != nil {
			return err
		}
		d.WithNotifier(notify.NewClient().WithLogger(logger), opts.ntfy)
	}

	display.Println(fmt.Sprintf("Searching for %d pattern(s) with %d thread(s)", len(patterns), opts.threads))
	for _, p := range patterns {
		logger.Debug("pattern", "kind", p.Kind().String(), "source", p.Source())
	}

	res, err := d.Search(ctx, opts.threads, patterns)
	if err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("search interrupted")
	}
	printSummary(display, res, logger)
	return nil
}

func printSummary(display *progress.Display, res *vanityssh.Result, logger *slog.Logger) {
	display.Println(fmt.Sprintf("Tested %s keys in %s, found %d matching key(s)",
		humanize.Comma(int64(res.TotalAttempts)),
		res.Elapsed.Round(time.Second),
		len(res.Hits),
	))
	for _, hit := range res.Hits {
		display.Println(fmt.Sprintf("  %s  %s", hit.Pattern, hit.KeyPair.AuthorizedKey()))
	}
	logger.Debug("summary printed", "hits", len(res.Hits))
}
