// Package workflow runs the supervised job-application state machine: a pure
// routing function picks the next agent, the engine invokes it and persists
// the state after every transition, suspending while a human approval is pending.
package workflow

import (
	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// AgentName identifies one workflow stage.
type AgentName string

const (
	AgentScrape  AgentName = "scrape"
	AgentMatch   AgentName = "match"
	AgentTailor  AgentName = "tailor"
	AgentApprove AgentName = "approve"
	AgentApply   AgentName = "apply"
	AgentLearn   AgentName = "learn"

	// agentSupervisor tags decisions made by routing itself.
	agentSupervisor = "supervisor"
)

// Default routing parameters.
const (
	DefaultErrorBudget    = 3
	DefaultMatchThreshold = 0.70
	DefaultSubmitAttempts = 3
)

// Policy holds the tunables consulted by the supervisor and agents.
type Policy struct {
	// ErrorBudget is the number of consecutive failed agent invocations that fails the workflow.
	ErrorBudget int
	// MatchThreshold applies until learning insights provide one.
	MatchThreshold float64
	SubmitAttempts int
	Provider       providers.Policy
	Learning       learning.Params
}

// DefaultPolicy returns the standard routing policy.
func DefaultPolicy() Policy {
	return Policy{
		ErrorBudget:    DefaultErrorBudget,
		MatchThreshold: DefaultMatchThreshold,
		SubmitAttempts: DefaultSubmitAttempts,
		Provider:       providers.DefaultPolicy(),
		Learning:       learning.DefaultParams(),
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.ErrorBudget <= 0 {
		p.ErrorBudget = def.ErrorBudget
	}
	if p.MatchThreshold <= 0 || p.MatchThreshold > 1 {
		p.MatchThreshold = def.MatchThreshold
	}
	if p.SubmitAttempts <= 0 {
		p.SubmitAttempts = def.SubmitAttempts
	}
	if p.Provider.Attempts <= 0 {
		p.Provider = def.Provider
	}
	if p.Learning == (learning.Params{}) {
		p.Learning = def.Learning
	}
	return p
}

// StepKind classifies a routing decision.
type StepKind int

const (
	// StepAgent invokes Step.Agent.
	StepAgent StepKind = iota
	// StepRelease drops the current job after a rejected or expired approval.
	StepRelease
	// StepEnd stops the loop with Step.Status.
	StepEnd
)

// Step is the supervisor's answer to "what next".
type Step struct {
	Kind   StepKind
	Agent  AgentName
	JobKey string
	Status types.WorkflowStatus
	Reason string
}

func (s Step) String() string {
	switch s.Kind {
	case StepAgent:
		if s.JobKey != "" {
			return string(s.Agent) + " " + s.JobKey
		}
		return string(s.Agent)
	case StepRelease:
		return "release " + s.JobKey
	default:
		return "end " + string(s.Status)
	}
}

func agentStep(agent AgentName, reason string) Step {
	return Step{Kind: StepAgent, Agent: agent, Reason: reason}
}

func endStep(status types.WorkflowStatus, reason string) Step {
	return Step{Kind: StepEnd, Status: status, Reason: reason}
}

// Next decides the next step from the state alone. It has no side effects.
func Next(s *types.WorkflowState, p Policy) Step {
	p = p.withDefaults()

	if s.Status.Terminal() {
		return endStep(s.Status, "workflow already finished")
	}
	if s.ConsecutiveFailures >= p.ErrorBudget {
		return endStep(types.StatusFailed, (&BudgetExceeded{Failures: s.ConsecutiveFailures, Budget: p.ErrorBudget}).Error())
	}
	if s.Status == types.StatusWaitingApproval {
		return endStep(types.StatusWaitingApproval, "awaiting approval")
	}
	if s.Preferences.Paused {
		return endStep(types.StatusCompleted, "user paused")
	}

	if len(s.ScrapedJobs) == 0 && !s.ScrapeCompleted {
		return agentStep(AgentScrape, "no jobs scraped yet")
	}
	if len(s.Unevaluated()) > 0 {
		return agentStep(AgentMatch, "unscored jobs pending")
	}

	if s.CurrentJob != nil {
		rec := s.ApprovalRecord
		switch {
		case rec == nil && s.TailoredDocument != nil:
			return Step{Kind: StepAgent, Agent: AgentApprove, JobKey: s.CurrentJob.Key(), Reason: "document ready for review"}
		case rec != nil && rec.Status == types.ApprovalApproved:
			return Step{Kind: StepAgent, Agent: AgentApply, JobKey: s.CurrentJob.Key(), Reason: "approved"}
		case rec != nil && (rec.Status == types.ApprovalRejected || rec.Status == types.ApprovalExpired):
			return Step{Kind: StepRelease, JobKey: s.CurrentJob.Key(), Reason: "approval " + string(rec.Status)}
		default:
			// Pending approvals are handled above by status; anything else is corrupt.
			return endStep(types.StatusFailed, "inconsistent job state")
		}
	}

	if job := nextCandidate(s); job != nil {
		return Step{Kind: StepAgent, Agent: AgentTailor, JobKey: job.Key(), Reason: "next best match"}
	}

	if !s.Learned {
		return agentStep(AgentLearn, "all jobs processed")
	}
	return endStep(types.StatusCompleted, "all jobs processed")
}

// nextCandidate returns the best matched job without a recorded outcome.
// MatchedJobs is kept sorted by score, then scrape order.
func nextCandidate(s *types.WorkflowState) *types.MatchedJob {
	for i := range s.MatchedJobs {
		if !s.Processed(s.MatchedJobs[i].Key()) {
			return &s.MatchedJobs[i]
		}
	}
	return nil
}
