package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApprovalWindow is how long a human has to answer an approval request.
const ApprovalWindow = 24 * time.Hour

// WorkflowStatus enumerates coarse workflow phases.
type WorkflowStatus string

const (
	StatusRunning         WorkflowStatus = "running"
	StatusWaitingApproval WorkflowStatus = "waiting_approval"
	StatusCompleted       WorkflowStatus = "completed"
	StatusFailed          WorkflowStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ApprovalStatus enumerates states of a human approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRecord tracks the approval cycle of the current job.
type ApprovalRecord struct {
	Status     ApprovalStatus `json:"status"`
	Token      string         `json:"token"`
	SentAt     time.Time      `json:"sent_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Feedback   string         `json:"feedback,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Decision is one entry of the audit trail.
type Decision struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Transient bool      `json:"transient,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState is the single record threaded through one workflow run.
type WorkflowState struct {
	WorkflowID  uuid.UUID   `json:"workflow_id"`
	UserID      string      `json:"user_id"`
	Preferences Preferences `json:"preferences"`
	BaseResume  string      `json:"base_resume"`

	ScrapedJobs     []JobPosting `json:"scraped_jobs"`
	ScrapeCompleted bool         `json:"scrape_completed"`
	Evaluations     []Evaluation `json:"evaluations"`
	MatchedJobs     []MatchedJob `json:"matched_jobs"`

	CurrentJob       *MatchedJob       `json:"current_job,omitempty"`
	TailoredDocument *TailoredDocument `json:"tailored_document,omitempty"`
	ApprovalRecord   *ApprovalRecord   `json:"approval_record,omitempty"`

	ProcessedJobs  []JobOutcome `json:"processed_jobs"`
	ResolvedTokens []string     `json:"resolved_tokens,omitempty"`

	Decisions           []Decision   `json:"decisions"`
	Errors              []ErrorEntry `json:"errors"`
	ConsecutiveFailures int          `json:"consecutive_failures"`

	LearningInsights Insights `json:"learning_insights"`
	Learned          bool     `json:"learned"`

	Status    WorkflowStatus `json:"status"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewWorkflowState creates a running state with empty collections.
func NewWorkflowState(userID string, prefs Preferences, baseResume string, insights Insights, now time.Time) *WorkflowState {
	return &WorkflowState{
		WorkflowID:       uuid.New(),
		UserID:           userID,
		Preferences:      prefs,
		BaseResume:       baseResume,
		ScrapedJobs:      []JobPosting{},
		Evaluations:      []Evaluation{},
		MatchedJobs:      []MatchedJob{},
		ProcessedJobs:    []JobOutcome{},
		Decisions:        []Decision{},
		Errors:           []ErrorEntry{},
		LearningInsights: insights,
		Status:           StatusRunning,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AddDecision appends to the audit trail.
func (s *WorkflowState) AddDecision(agent, action, reason string, at time.Time) {
	s.Decisions = append(s.Decisions, Decision{Agent: agent, Action: action, Reason: reason, Timestamp: at})
}

// AddError appends to the error log.
func (s *WorkflowState) AddError(agent, message string, transient bool, at time.Time) {
	s.Errors = append(s.Errors, ErrorEntry{Agent: agent, Message: message, Transient: transient, Timestamp: at})
}

// ScrapedJob finds a scraped posting by key.
func (s *WorkflowState) ScrapedJob(key string) (JobPosting, bool) {
	for _, j := range s.ScrapedJobs {
		if j.Key() == key {
			return j, true
		}
	}
	return JobPosting{}, false
}

// Evaluated reports whether the job has already been through scoring.
func (s *WorkflowState) Evaluated(key string) bool {
	for _, e := range s.Evaluations {
		if e.JobKey == key {
			return true
		}
	}
	return false
}

// Unevaluated returns scraped jobs not yet scored, in scrape order.
func (s *WorkflowState) Unevaluated() []JobPosting {
	var out []JobPosting
	for _, j := range s.ScrapedJobs {
		if !s.Evaluated(j.Key()) {
			out = append(out, j)
		}
	}
	return out
}

// Processed reports whether a terminal outcome was recorded for the job.
func (s *WorkflowState) Processed(key string) bool {
	for _, p := range s.ProcessedJobs {
		if p.JobKey == key {
			return true
		}
	}
	return false
}

// TokenResolved reports whether an approval token was already consumed.
func (s *WorkflowState) TokenResolved(token string) bool {
	for _, t := range s.ResolvedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// ClearCurrentJob drops the per-job fields once the job reached a terminal outcome.
func (s *WorkflowState) ClearCurrentJob() {
	s.CurrentJob = nil
	s.TailoredDocument = nil
	s.ApprovalRecord = nil
}

// CheckInvariants verifies the structural invariants of the state.
func (s *WorkflowState) CheckInvariants() error {
	scraped := make(map[string]bool, len(s.ScrapedJobs))
	for _, j := range s.ScrapedJobs {
		if scraped[j.Key()] {
			return fmt.Errorf("duplicate scraped job %s", j.Key())
		}
		scraped[j.Key()] = true
	}
	for i, m := range s.MatchedJobs {
		if !scraped[m.Key()] {
			return fmt.Errorf("matched job %s not in scraped jobs", m.Key())
		}
		if m.Score < 0 || m.Score > 1 {
			return fmt.Errorf("matched job %s has score %.3f outside [0,1]", m.Key(), m.Score)
		}
		if i > 0 && m.Score > s.MatchedJobs[i-1].Score {
			return fmt.Errorf("matched jobs not ordered by descending score at %d", i)
		}
	}
	hasJobData := s.TailoredDocument != nil || s.ApprovalRecord != nil
	if (s.CurrentJob != nil) != hasJobData {
		return fmt.Errorf("current job must be set exactly when a tailored document or approval record exists")
	}
	if r := s.ApprovalRecord; r != nil && !r.ExpiresAt.Equal(r.SentAt.Add(ApprovalWindow)) {
		return fmt.Errorf("approval record expiry %s is not sent time plus %s", r.ExpiresAt, ApprovalWindow)
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *WorkflowState) Clone() (*WorkflowState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	var out WorkflowState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow state: %w", err)
	}
	return &out, nil
}
