package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "ghrelay",
	Short: "Relay GitHub notification emails from one Slack channel to another",
	Long: `ghrelay watches a Slack channel for forwarded GitHub notification
emails, classifies and enriches them via the GitHub API, and posts
formatted notifications to a second channel.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./ghrelay.yaml", "path to config file (yaml or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
