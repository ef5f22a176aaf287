package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const (
	jobPriceCrawl       = "price-crawl"
	jobRedditCollection = "reddit-collection"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run and inspect the standing cron scheduler",
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Register the standing jobs and block until signaled",
	RunE:  runSchedulerStart,
}

var schedulerJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List registered jobs and their recent history",
	RunE:  runSchedulerJobs,
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether each standing job is currently in flight",
	RunE:  runSchedulerStatus,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd, schedulerJobsCmd, schedulerStatusCmd)
}

// registerStandingJobs wires the two jobs spec.md calls for onto a.scheduler.
func registerStandingJobs(a *app) error {
	if err := a.scheduler.Register(jobPriceCrawl, a.cfg.Schedule.PriceCrawl, func(ctx context.Context) error {
		_, err := a.pipeline.RunPriceOnly(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("register %s: %w", jobPriceCrawl, err)
	}

	if err := a.scheduler.Register(jobRedditCollection, a.cfg.Schedule.RedditCollection, func(ctx context.Context) error {
		_, err := a.pipeline.RunSignalsOnly(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("register %s: %w", jobRedditCollection, err)
	}

	return nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerStandingJobs(a); err != nil {
		return err
	}

	a.scheduler.Start()
	a.logger.Info("scheduler running", "price_crawl", a.cfg.Schedule.PriceCrawl, "reddit_collection", a.cfg.Schedule.RedditCollection)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutting down scheduler")
	a.scheduler.Stop()
	return nil
}

func runSchedulerJobs(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerStandingJobs(a); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tRUNNING\tLAST RUN\tLAST SUCCESS")
	for _, jobID := range []string{jobPriceCrawl, jobRedditCollection} {
		history := a.scheduler.History(jobID)
		if len(history) == 0 {
			fmt.Fprintf(w, "%s\t%v\tnever\t-\n", jobID, a.scheduler.IsRunning(jobID))
			continue
		}
		last := history[len(history)-1]
		fmt.Fprintf(w, "%s\t%v\t%s\t%v\n", jobID, a.scheduler.IsRunning(jobID), last.FiredAt, last.Success)
	}
	return w.Flush()
}

// runSchedulerStatus is the lightweight counterpart to runSchedulerJobs: a
// single running/idle line per job, no history detail.
func runSchedulerStatus(cmd *cobra.Command, args []string) error {
	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerStandingJobs(a); err != nil {
		return err
	}

	for _, jobID := range []string{jobPriceCrawl, jobRedditCollection} {
		state := "idle"
		if a.scheduler.IsRunning(jobID) {
			state = "running"
		}
		fmt.Printf("%s: %s\n", jobID, state)
	}
	return nil
}
