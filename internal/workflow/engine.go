package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// TransitionEvent is emitted after every persisted transition.
type TransitionEvent struct {
	WorkflowID uuid.UUID
	Step       Step
	Status     types.WorkflowStatus
	Failed     bool
}

// TransitionCallback observes engine progress.
type TransitionCallback func(event TransitionEvent)

// Options configures an Engine.
type Options struct {
	Policy       Policy
	Now          func() time.Time
	Logger       *log.Logger
	OnTransition TransitionCallback
}

// Engine drives the supervisor/agent loop for any number of workflows.
// It holds no per-workflow state between calls.
type Engine struct {
	store        Store
	learning     learning.Store
	providers    providers.Set
	policy       Policy
	clock        func() time.Time
	logger       *log.Logger
	onTransition TransitionCallback
	agents       map[AgentName]agentFunc
}

// New wires an Engine.
func New(store Store, learningStore learning.Store, set providers.Set, opts Options) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("workflow store is required")
	}
	if learningStore == nil {
		return nil, fmt.Errorf("learning store is required")
	}
	if set.Scorer == nil || set.Tailor == nil || set.Notifier == nil || set.Submitter == nil {
		return nil, fmt.Errorf("scorer, tailor, notifier and submitter providers are required")
	}

	e := &Engine{
		store:        store,
		learning:     learningStore,
		providers:    set,
		policy:       opts.Policy.withDefaults(),
		clock:        opts.Now,
		logger:       opts.Logger,
		onTransition: opts.OnTransition,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	e.agents = e.agentFuncs()
	return e, nil
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) logf(id uuid.UUID, format string, args ...any) {
	e.logger.Printf("[WORKFLOW %s] %s", id, fmt.Sprintf(format, args...))
}

// StartInput is what a caller supplies to begin a workflow.
type StartInput struct {
	UserID      string
	Preferences types.Preferences
	BaseResume  string
}

// Create validates the input and persists a fresh workflow without running it.
func (e *Engine) Create(ctx context.Context, in StartInput) (*types.WorkflowState, error) {
	if in.UserID == "" {
		return nil, &ValidationError{Message: "user id is required"}
	}
	if err := in.Preferences.Validate(); err != nil {
		return nil, &ValidationError{Message: "invalid preferences", Cause: err}
	}

	insights, err := e.learning.LatestInsights(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load learning insights: %w", err)
	}

	state := types.NewWorkflowState(in.UserID, in.Preferences, in.BaseResume, insights, e.now())
	if err := e.store.Create(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	e.logf(state.WorkflowID, "created for user %s", in.UserID)
	return state, nil
}

// Start creates a workflow and runs it until it finishes or suspends for approval.
func (e *Engine) Start(ctx context.Context, in StartInput) (uuid.UUID, error) {
	state, err := e.Create(ctx, in)
	if err != nil {
		return uuid.Nil, err
	}
	unlock, err := e.store.Lock(ctx, state.WorkflowID)
	if err != nil {
		return state.WorkflowID, err
	}
	defer unlock()
	if _, err := e.advance(ctx, state); err != nil {
		return state.WorkflowID, err
	}
	return state.WorkflowID, nil
}

// Run claims a workflow, loads it and advances it. If another runner holds
// the claim it returns ErrBusy before any provider is called.
func (e *Engine) Run(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	unlock, err := e.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.advance(ctx, state)
}

// Status loads a workflow without advancing it.
func (e *Engine) Status(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	return e.store.Load(ctx, id)
}

// advance runs the supervisor loop, persisting after every transition,
// until the supervisor ends or suspends the workflow.
func (e *Engine) advance(ctx context.Context, state *types.WorkflowState) (*types.WorkflowState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		step := Next(state, e.policy)
		switch step.Kind {
		case StepEnd:
			if step.Status == types.StatusWaitingApproval || state.Status.Terminal() {
				return state, nil
			}
			state.Status = step.Status
			state.AddDecision(agentSupervisor, "workflow_"+string(step.Status), step.Reason, e.now())
			if err := e.persist(ctx, state, step, false); err != nil {
				return state, err
			}
			e.logf(state.WorkflowID, "finished: %s (%s)", step.Status, step.Reason)
			return state, nil

		case StepRelease:
			e.release(state, step)
			if err := e.persist(ctx, state, step, false); err != nil {
				return state, err
			}

		case StepAgent:
			agent, ok := e.agents[step.Agent]
			if !ok {
				return state, fmt.Errorf("no agent registered for %q", step.Agent)
			}
			e.logf(state.WorkflowID, "running %s", step)

			err := agent(ctx, state, step)
			if err != nil && ctx.Err() != nil {
				// Discard the partial transition; the last persisted state stands.
				return state, ctx.Err()
			}
			if err != nil {
				state.ConsecutiveFailures++
				e.logf(state.WorkflowID, "%s failed (%d consecutive): %v", step.Agent, state.ConsecutiveFailures, err)
			} else {
				state.ConsecutiveFailures = 0
			}
			if err := e.persist(ctx, state, step, err != nil); err != nil {
				return state, err
			}
		}
	}
}

// release drops the current job after a rejected or expired approval.
func (e *Engine) release(s *types.WorkflowState, step Step) {
	now := e.now()
	result := types.JobResultRejected
	if s.ApprovalRecord.Status == types.ApprovalExpired {
		result = types.JobResultExpired
	}
	s.ProcessedJobs = append(s.ProcessedJobs, types.JobOutcome{
		JobKey:   step.JobKey,
		Result:   result,
		Score:    s.CurrentJob.Score,
		Feedback: s.ApprovalRecord.Feedback,
		At:       now,
	})
	s.ClearCurrentJob()
	s.AddDecision(agentSupervisor, "released_"+step.JobKey, step.Reason, now)
}

func (e *Engine) persist(ctx context.Context, s *types.WorkflowState, step Step, failed bool) error {
	s.UpdatedAt = e.now()
	if err := s.CheckInvariants(); err != nil {
		return fmt.Errorf("workflow %s invariant violated: %w", s.WorkflowID, err)
	}
	if err := e.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", s.WorkflowID, err)
	}
	if e.onTransition != nil {
		e.onTransition(TransitionEvent{WorkflowID: s.WorkflowID, Step: step, Status: s.Status, Failed: failed})
	}
	return nil
}

// TriggerKind enumerates the ways a suspended workflow is re-entered.
type TriggerKind string

const (
	// TriggerApproval carries a human decision for a pending approval.
	TriggerApproval TriggerKind = "approval"
	// TriggerTimeout expires a pending approval whose window has passed.
	TriggerTimeout TriggerKind = "timeout"
	// TriggerContinue re-enters a running workflow, e.g. after a restart.
	TriggerContinue TriggerKind = "continue"
)

// Approval decisions.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Trigger is an external event that resumes a workflow.
type Trigger struct {
	Kind     TriggerKind
	Token    string
	Decision string
	Feedback string
}

// Resume applies a trigger to a persisted workflow and continues the loop.
// A token that was already consumed is a no-op. Invalid triggers return a
// ValidationError and leave the workflow unchanged.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID, trig Trigger) (*types.WorkflowState, error) {
	state, ready, err := e.Resolve(ctx, id, trig)
	if err != nil || !ready {
		return state, err
	}
	return e.Run(ctx, id)
}

// Resolve applies and persists a trigger without running any agent. It
// reports whether the workflow is ready to advance; callers that want the
// loop to continue follow up with Run.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID, trig Trigger) (*types.WorkflowState, bool, error) {
	state, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	switch trig.Kind {
	case TriggerApproval:
		if trig.Token != "" && state.TokenResolved(trig.Token) {
			e.logf(id, "approval token already resolved, ignoring")
			return state, false, nil
		}
		if err := checkApproval(state, trig, now); err != nil {
			return state, false, err
		}
		rec := state.ApprovalRecord
		rec.Status = types.ApprovalApproved
		if trig.Decision == DecisionRejected {
			rec.Status = types.ApprovalRejected
		}
		rec.Feedback = trig.Feedback
		rec.ResolvedAt = &now
		state.ResolvedTokens = append(state.ResolvedTokens, rec.Token)
		state.Status = types.StatusRunning
		state.AddDecision(string(AgentApprove), "approval_"+trig.Decision, trig.Feedback, now)

	case TriggerTimeout:
		rec := state.ApprovalRecord
		if state.Status != types.StatusWaitingApproval || rec == nil || rec.Status != types.ApprovalPending {
			return state, false, nil
		}
		if !now.After(rec.ExpiresAt) {
			return state, false, &ValidationError{Message: fmt.Sprintf("approval does not expire until %s", rec.ExpiresAt.Format(time.RFC3339))}
		}
		rec.Status = types.ApprovalExpired
		rec.ResolvedAt = &now
		state.ResolvedTokens = append(state.ResolvedTokens, rec.Token)
		state.Status = types.StatusRunning
		state.AddDecision(string(AgentApprove), "approval_expired", "no response within "+types.ApprovalWindow.String(), now)

	case TriggerContinue:
		return state, state.Status == types.StatusRunning, nil

	default:
		return state, false, &ValidationError{Message: fmt.Sprintf("unknown trigger %q", trig.Kind)}
	}

	if err := e.persist(ctx, state, Step{Kind: StepAgent, Agent: AgentApprove}, false); err != nil {
		return state, false, err
	}
	e.logf(id, "resumed by %s trigger", trig.Kind)
	return state, true, nil
}

func checkApproval(s *types.WorkflowState, trig Trigger, now time.Time) error {
	if trig.Decision != DecisionApproved && trig.Decision != DecisionRejected {
		return &ValidationError{Message: fmt.Sprintf("decision must be %q or %q", DecisionApproved, DecisionRejected)}
	}
	rec := s.ApprovalRecord
	if s.Status != types.StatusWaitingApproval || rec == nil || rec.Status != types.ApprovalPending {
		return &ValidationError{Message: "workflow is not waiting for approval"}
	}
	if trig.Token == "" || trig.Token != rec.Token {
		return &ValidationError{Message: "approval token does not match the pending request"}
	}
	if now.After(rec.ExpiresAt) {
		return &ValidationError{Message: fmt.Sprintf("approval token expired at %s", rec.ExpiresAt.Format(time.RFC3339))}
	}
	return nil
}

// Sweep expires every pending approval whose window has passed and resumes
// those workflows. It returns how many were expired.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	ids, err := e.store.ListExpiredApprovals(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired approvals: %w", err)
	}

	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, ready, err := e.Resolve(ctx, id, Trigger{Kind: TriggerTimeout})
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr), errors.Is(err, ErrConflict):
			e.logf(id, "sweep skipped: %v", err)
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("workflow %s: %w", id, err))
			continue
		case !ready:
			e.logf(id, "sweep skipped: approval already resolved")
			continue
		}
		expired++

		if _, err := e.Run(ctx, id); err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			if errors.Is(err, ErrBusy) || errors.Is(err, ErrConflict) {
				e.logf(id, "sweep left advancing to the active runner: %v", err)
				continue
			}
			errs = append(errs, fmt.Errorf("workflow %s: %w", id, err))
		}
	}
	return expired, errors.Join(errs...)
}
