// Package main provides the job_agent CLI: it runs job-hunting workflows,
// resolves approvals and serves the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	databaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "job_agent",
	Short: "Job-hunting workflow orchestrator",
	Long: `job_agent scrapes job boards, scores postings against your preferences, tailors
your resume for the best matches and submits applications after you approve them.

Workflows are persisted after every step; a suspended workflow is resumed by an
approval link, the approve/reject commands, or the expiry sweep.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (values can be overridden by environment variables)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
