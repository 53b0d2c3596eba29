package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/workflow"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow-id>",
	Short: "Continue a running workflow, e.g. after a crash or restart",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var approveCmd = &cobra.Command{
	Use:   "approve <token>",
	Short: "Approve the pending application identified by an approval token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, args[0], workflow.DecisionApproved)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <token>",
	Short: "Reject the pending application; the workflow moves to the next match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecision(cmd, args[0], workflow.DecisionRejected)
	},
}

var decisionFeedback string

func init() {
	approveCmd.Flags().StringVar(&decisionFeedback, "feedback", "", "Optional note stored with the decision")
	rejectCmd.Flags().StringVar(&decisionFeedback, "feedback", "", "Optional reason stored with the decision")
	rootCmd.AddCommand(resumeCmd, approveCmd, rejectCmd)
}

func runResume(_ *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow ID %q: %w", args[0], err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	_, runErr := rt.engine.Resume(ctx, id, workflow.Trigger{Kind: workflow.TriggerContinue})
	return reportWorkflow(ctx, rt, id, runErr)
}

func runDecision(_ *cobra.Command, token, decision string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	claims, err := rt.issuer.Parse(token)
	if err != nil {
		return err
	}
	fmt.Printf("Recording %s for %s (workflow %s)\n", decision, claims.JobKey, claims.WorkflowID)

	_, runErr := rt.engine.Resume(ctx, claims.WorkflowID, workflow.Trigger{
		Kind:     workflow.TriggerApproval,
		Token:    token,
		Decision: decision,
		Feedback: decisionFeedback,
	})
	return reportWorkflow(ctx, rt, claims.WorkflowID, runErr)
}
