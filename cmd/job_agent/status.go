package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show a workflow, or list a user's workflows with --user",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var (
	statusUser  string
	statusLimit int
)

func init() {
	statusCmd.Flags().StringVarP(&statusUser, "user", "u", "", "List the workflows of this user instead")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum workflows to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 0 && statusUser == "" {
		return fmt.Errorf("pass a workflow ID or --user")
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

	if len(args) == 0 {
		list, err := st.db.Workflows().ListByUser(ctx, statusUser, statusLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Printf("No workflows for %s\n", statusUser)
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tVERSION\tUPDATED")
		for _, w := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", w.ID, w.Status, w.Version, w.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow ID %q: %w", args[0], err)
	}
	state, err := st.workflows.Load(ctx, id)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintSummary(observability.Summarize(state, cfg.Matching.Threshold))
	printer.PrintMatches(state)
	printer.PrintOutcomes(state)
	printer.PrintInsights(state.LearningInsights)
	return nil
}
