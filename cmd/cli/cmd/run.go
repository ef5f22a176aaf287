package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esomin/gpu-market-intel/internal/pipeline"
)

// ErrPartialSuccess is returned by a run subcommand when the pipeline
// completed (Stats.Success) but logged one or more per-record errors.
// main.go maps it to exit code 2, distinct from exit 1 for an outright
// failure and exit 0 for a clean run.
var ErrPartialSuccess = errors.New("pipeline completed with per-record errors")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline pass immediately and exit",
}

var runFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run price crawl, reddit collection, and risk analysis",
	RunE:  runFull,
}

var runPriceCrawlCmd = &cobra.Command{
	Use:   "price-crawl",
	Short: "Run only the price crawl phase",
	RunE:  runPriceCrawl,
}

var runRedditCollectionCmd = &cobra.Command{
	Use:   "reddit-collection",
	Short: "Run only the subreddit feed collection phase",
	RunE:  runRedditCollection,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runFullCmd, runPriceCrawlCmd, runRedditCollectionCmd)
}

func runFull(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.RunFull(context.Background())
	if err != nil {
		return err
	}
	printStats(stats)
	return statsResult(stats)
}

func runPriceCrawl(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.RunPriceOnly(context.Background())
	if err != nil {
		return err
	}
	printStats(stats)
	return statsResult(stats)
}

func runRedditCollection(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.pipeline.RunSignalsOnly(context.Background())
	if err != nil {
		return err
	}
	printStats(stats)
	return statsResult(stats)
}

// statsResult maps a finished run's Stats onto the RunE error contract: a
// fatal (Success=false) run is an outright error, a clean run is nil, and a
// run with per-record errors but overall Success is ErrPartialSuccess so
// main.go can exit 2.
func statsResult(stats *pipeline.Stats) error {
	if !stats.Success {
		return fmt.Errorf("pipeline run failed at phase %s after %d errors", stats.FinalPhase, len(stats.Errors))
	}
	if len(stats.Errors) > 0 {
		return ErrPartialSuccess
	}
	return nil
}

func printStats(stats *pipeline.Stats) {
	fmt.Printf("phase=%s success=%v duration=%s products=%d prices=%d signals=%d alerts=%d errors=%d\n",
		stats.FinalPhase, stats.Success, stats.Duration,
		stats.ProductsUpserted, stats.PricesInserted, stats.SignalsInserted, stats.AlertsFired, len(stats.Errors))
	for _, e := range stats.Errors {
		fmt.Printf("  - %s\n", e)
	}
}
