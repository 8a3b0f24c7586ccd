// Package main provides the entry point for the ResearchGPT HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "researchgpt",
	Short: "ResearchGPT HTTP API Server",
	Long:  "ResearchGPT guides users from a vague research idea to a week-by-week research plan through a multi-step agent wizard exposed via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
