package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/lore/pkg/processor"
	"github.com/xhad/lore/pkg/scraper"
)

var (
	ingestReset     bool
	ingestBatchSize int
	fetchReset      bool
	fetchDepth      int
	fetchRateLimit  float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Load lore entries from a JSON Lines or JSON array file",
	Long: `Load lore entries from a file into the index.

The file holds one record per line (JSON Lines) or a single JSON array of
records. Each record needs a title and a body in "text", "content" or "html".
Use "-" to read from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Crawl a wiki and load its pages as lore entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the index before loading")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "entries per index write (default from config)")
	fetchCmd.Flags().BoolVar(&fetchReset, "reset", false, "clear the index before loading")
	fetchCmd.Flags().IntVar(&fetchDepth, "max-depth", 0, "link depth to follow (default from config)")
	fetchCmd.Flags().Float64Var(&fetchRateLimit, "rate-limit", 0, "requests per second (default from config)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(fetchCmd)
}

func newProcessor(a *app) processor.Processor {
	batch := a.config.Database.BatchSize
	if ingestBatchSize > 0 {
		batch = ingestBatchSize
	}
	return processor.NewWithConfig(processor.ProcessorConfig{
		MinLength: a.config.Ingest.MinLength,
		MaxLength: a.config.Ingest.MaxLength,
		BatchSize: batch,
	}, a.logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	if ingestReset {
		if err := a.repo.Clear(ctx); err != nil {
			return err
		}
	}

	bar := getProgressBar(cmd.ErrOrStderr(), -1, " Embedding lore entries")
	p := newProcessor(a)
	stats, err := p.Ingest(ctx, r, a.repo, func(s processor.Stats) {
		_ = bar.Set(s.Processed)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("ingest stopped after %d entries: %w", stats.Processed, err)
	}

	printStats(cmd, stats, a.repo.DocumentCount(ctx))
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	maxDepth := a.config.Scraper.MaxDepth
	if fetchDepth > 0 {
		maxDepth = fetchDepth
	}
	rateLimit := a.config.Scraper.RateLimit
	if fetchRateLimit > 0 {
		rateLimit = fetchRateLimit
	}

	var pages atomic.Int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        args[0],
		MaxDepth:       maxDepth,
		RateLimit:      rateLimit,
		IgnorePatterns: a.config.Scraper.IgnorePatterns,
		OnProgress: func(string) {
			pages.Add(1)
		},
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	bar := getProgressBar(cmd.ErrOrStderr(), -1, " Crawling wiki")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				count := pages.Load()
				_ = bar.Set(int(count))
				if elapsed := time.Since(start).Seconds(); elapsed > 0 {
					bar.Describe(color.BlueString(" Crawling wiki (%.1f pages/sec)", float64(count)/elapsed))
				}
			}
		}
	}()

	records, err := s.Fetch(ctx, args[0])
	close(done)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", args[0], err)
	}
	a.logger.Info("crawl finished", zap.Int("pages", len(records)))

	if fetchReset {
		if err := a.repo.Clear(ctx); err != nil {
			return err
		}
	}

	embedBar := getProgressBar(cmd.ErrOrStderr(), len(records), " Embedding lore entries")
	p := newProcessor(a)
	stats, err := p.IngestRecords(ctx, records, a.repo, func(s processor.Stats) {
		_ = embedBar.Set(s.Total())
	})
	_ = embedBar.Finish()
	if err != nil {
		return fmt.Errorf("ingest stopped after %d entries: %w", stats.Processed, err)
	}

	printStats(cmd, stats, a.repo.DocumentCount(ctx))
	return nil
}

func printStats(cmd *cobra.Command, stats processor.Stats, total int) {
	out := cmd.OutOrStdout()
	color.New(color.FgGreen).Fprintf(out, "✓ Loaded %d entries", stats.Processed)
	fmt.Fprintf(out, " (%d skipped, %d malformed), %d in index\n", stats.Skipped, stats.Errors, total)
}
