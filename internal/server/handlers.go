package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

const maxRequestBytes = 1 << 20

// StartRequest is the body of POST /workflows.
type StartRequest struct {
	UserID      string            `json:"user_id" validate:"required"`
	Preferences types.Preferences `json:"preferences"`
	BaseResume  string            `json:"base_resume" validate:"required"`
	// Wait runs the workflow inline until it finishes or suspends.
	Wait bool `json:"wait,omitempty"`
}

// OutcomeRequest is the body of POST /outcomes.
type OutcomeRequest struct {
	ApplicationID string     `json:"application_id" validate:"required"`
	Outcome       string     `json:"outcome" validate:"required,oneof=response rejection interview offer no_response"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
}

// ApprovalResponse reports what an approval callback did.
type ApprovalResponse struct {
	WorkflowID string               `json:"workflow_id"`
	JobKey     string               `json:"job_key"`
	Decision   string               `json:"decision"`
	Status     types.WorkflowStatus `json:"status"`
	// Applied is false when the token had already been used.
	Applied bool `json:"applied"`
}

// handleStartWorkflow creates a workflow and advances it.
func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	state, err := s.engine.Create(r.Context(), workflow.StartInput{
		UserID:      req.UserID,
		Preferences: req.Preferences,
		BaseResume:  req.BaseResume,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Wait {
		state, err = s.engine.Run(r.Context(), state.WorkflowID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, observability.Summarize(state, s.threshold))
		return
	}

	s.advanceAsync(state.WorkflowID)
	w.Header().Set("Location", "/workflows/"+state.WorkflowID.String())
	s.jsonResponse(w, http.StatusAccepted, observability.Summarize(state, s.threshold))
}

// handleGetWorkflow returns the workflow summary.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	state, err := s.engine.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, observability.Summarize(state, s.threshold))
}

// handleResumeWorkflow re-enters a running workflow, e.g. after a restart.
func (s *Server) handleResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workflowID(w, r)
	if !ok {
		return
	}
	state, ready, err := s.engine.Resolve(r.Context(), id, workflow.Trigger{Kind: workflow.TriggerContinue})
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if ready {
		s.advanceAsync(id)
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, observability.Summarize(state, s.threshold))
}

// handleApproval resolves the approval link sent to the user. The decision is
// recorded before responding; the next agents run in the background.
func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	claims, err := s.issuer.Parse(r.PathValue("token"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var decision string
	switch r.FormValue("action") {
	case "approve":
		decision = workflow.DecisionApproved
	case "reject":
		decision = workflow.DecisionRejected
	default:
		s.writeError(w, &ErrValidation{Field: "action", Message: "must be approve or reject"})
		return
	}

	state, ready, err := s.engine.Resolve(r.Context(), claims.WorkflowID, workflow.Trigger{
		Kind:     workflow.TriggerApproval,
		Token:    r.PathValue("token"),
		Decision: decision,
		Feedback: r.FormValue("feedback"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	log.Printf("[APPROVAL] workflow %s job %s: %s (applied=%t)", claims.WorkflowID, claims.JobKey, decision, ready)

	status := http.StatusOK
	if ready {
		s.advanceAsync(claims.WorkflowID)
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, ApprovalResponse{
		WorkflowID: claims.WorkflowID.String(),
		JobKey:     claims.JobKey,
		Decision:   decision,
		Status:     state.Status,
		Applied:    ready,
	})
}

// handleRecordOutcome appends an externally observed outcome to the learning log.
func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !json.Valid(body) {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := schemas.Validate(schemas.OutcomeEvent, string(body)); err != nil {
		s.writeError(w, err)
		return
	}

	var req OutcomeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	outcome, err := learning.ParseOutcome(req.Outcome)
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "outcome", Message: err.Error()})
		return
	}
	observedAt := s.now().UTC()
	if req.ObservedAt != nil {
		observedAt = req.ObservedAt.UTC()
	}

	if err := s.outcomes.RecordOutcome(r.Context(), req.ApplicationID, outcome, observedAt); err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"application_id": req.ApplicationID,
		"outcome":        outcome,
		"observed_at":    observedAt,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			log.Printf("Health check failed: %v", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) workflowID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// validationError converts validator errors, reporting the first field only.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ErrValidation{Field: fe.Namespace(), Message: fmt.Sprintf("failed on %q", fe.Tag())}
	}
	return &ErrValidation{Message: "invalid request"}
}
