package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "walstore",
	Short: "A key-value store backed by a write-ahead log",
	Long: `walstore keeps its data in memory and appends every mutation to a
durable JSON-lines write-ahead log, replaying the log on startup.`,
	SilenceUsage: true,
}

func ExecuteServer() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.AddCommand(startNodeCmd)
	rootCmd.AddCommand(walCmd)
}
