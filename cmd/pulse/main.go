package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulse <command>",
	Short: "Mutation event distribution service",
	Long: `pulse distributes workflow mutation events to interactive clients over
Server-Sent Events and to the automation consumer through a durable
delivery outbox.`,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
