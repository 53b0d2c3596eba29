package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/learning"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome <application-id> <response|rejection|interview|offer|no_response>",
	Short: "Record what happened to a submitted application",
	Long: `Appends an outcome to the learning log. The next workflow of the same user
picks it up when it recomputes its insights.`,
	Args: cobra.ExactArgs(2),
	RunE: runOutcome,
}

var outcomeAt string

func init() {
	outcomeCmd.Flags().StringVar(&outcomeAt, "at", "", "When the outcome was observed (RFC3339, defaults to now)")
	rootCmd.AddCommand(outcomeCmd)
}

// parseOutcomeArgs validates the outcome and observation time.
func parseOutcomeArgs(name, at string, now time.Time) (learning.Outcome, time.Time, error) {
	outcome, err := learning.ParseOutcome(name)
	if err != nil {
		return "", time.Time{}, err
	}
	if at == "" {
		return outcome, now.UTC(), nil
	}
	observed, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	return outcome, observed.UTC(), nil
}

func runOutcome(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	outcome, observedAt, err := parseOutcomeArgs(args[1], outcomeAt, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.learning.RecordOutcome(ctx, args[0], outcome, observedAt); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	fmt.Printf("✓ Recorded %s for application %s\n", outcome, args[0])
	return nil
}
