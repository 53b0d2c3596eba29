package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new workflow and run it until it needs your approval",
	Long: `Starts a workflow for the configured user: scrape -> match -> tailor -> approve.
The command returns once an approval request has been sent or the workflow ends.

Preferences come from the config file; --keyword, --location and --job-type override them.`,
	RunE: runStart,
}

var (
	startUser     string
	startResume   string
	startKeywords []string
	startLocation string
	startJobType  string
)

func init() {
	startCmd.Flags().StringVarP(&startUser, "user", "u", "", "User ID (defaults to user_id in the config)")
	startCmd.Flags().StringVarP(&startResume, "resume", "r", "", "Path to the base resume (defaults to resume in the config)")
	startCmd.Flags().StringSliceVarP(&startKeywords, "keyword", "k", nil, "Search keyword (repeatable)")
	startCmd.Flags().StringVar(&startLocation, "location", "", "Preferred location")
	startCmd.Flags().StringVar(&startJobType, "job-type", "", "Job type: full-time, part-time, contract, internship or remote")
	rootCmd.AddCommand(startCmd)
}

// startInput merges flags over the config into the engine input.
func startInput(userID, resumePath string, prefs types.Preferences) (workflow.StartInput, error) {
	if userID == "" {
		return workflow.StartInput{}, fmt.Errorf("user ID is required: set user_id in the config or pass --user")
	}
	if resumePath == "" {
		return workflow.StartInput{}, fmt.Errorf("base resume is required: set resume in the config or pass --resume")
	}
	resume, err := os.ReadFile(resumePath)
	if err != nil {
		return workflow.StartInput{}, fmt.Errorf("failed to read resume: %w", err)
	}
	if len(startKeywords) > 0 {
		prefs.Keywords = startKeywords
	}
	if startLocation != "" {
		prefs.Location = startLocation
	}
	if startJobType != "" {
		prefs.JobType = startJobType
	}
	return workflow.StartInput{UserID: userID, Preferences: prefs, BaseResume: string(resume)}, nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	userID := cfg.UserID
	if startUser != "" {
		userID = startUser
	}
	resumePath := cfg.Resume
	if startResume != "" {
		resumePath = startResume
	}
	in, err := startInput(userID, resumePath, cfg.Preferences)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting workflow for %s (%v)\n", in.UserID, in.Preferences.Keywords)
	id, runErr := rt.engine.Start(ctx, in)
	if id == uuid.Nil {
		return runErr
	}
	return reportWorkflow(ctx, rt, id, runErr)
}

// reportWorkflow prints the state a command left the workflow in.
func reportWorkflow(ctx context.Context, rt *runtime, id uuid.UUID, runErr error) error {
	state, err := rt.engine.Status(ctx, id)
	if err != nil {
		if runErr != nil {
			return runErr
		}
		return err
	}
	rt.printer.PrintSummary(observability.Summarize(state, rt.cfg.Matching.Threshold))
	rt.printer.PrintMatches(state)
	rt.printer.PrintOutcomes(state)
	if state.Learned {
		rt.printer.PrintInsights(state.LearningInsights)
	}
	if runErr != nil {
		return fmt.Errorf("workflow %s stopped: %w", id, runErr)
	}
	if state.Status == types.StatusWaitingApproval && state.CurrentJob != nil {
		fmt.Printf("Waiting for approval of %s. Approve with the emailed link or:\n  job_agent approve <token>\n", state.CurrentJob.Key())
	}
	return nil
}
