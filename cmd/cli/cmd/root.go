package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gpu-market-intel",
	Short: "GPU market intelligence ETL CLI",
	Long: `gpu-market-intel runs and inspects the GPU market-intelligence
pipeline: price crawling, subreddit sentiment collection, and risk
alerting over a local SQLite store.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GPU_MARKET_INTEL_CONFIG"), "path to config file (optional)")
}
