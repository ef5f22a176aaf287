package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [job-id]",
	Short: "Fire a registered job out-of-band, respecting the no-overlap rule",
	Long:  `trigger fires price-crawl or reddit-collection immediately, the same way the scheduler would, and still refuses to run a job that's already in flight.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	if jobID != jobPriceCrawl && jobID != jobRedditCollection {
		return fmt.Errorf("unknown job %q (expected %q or %q)", jobID, jobPriceCrawl, jobRedditCollection)
	}

	a, err := wireApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := registerStandingJobs(a); err != nil {
		return err
	}

	if err := a.scheduler.Trigger(context.Background(), jobID); err != nil {
		return err
	}

	history := a.scheduler.History(jobID)
	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Printf("job=%s success=%v duration=%s\n", jobID, last.Success, last.Duration)
		if !last.Success {
			return fmt.Errorf("job %s failed: %s", jobID, last.Error)
		}
	}
	return nil
}
