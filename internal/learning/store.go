// Package learning holds the cross-run feedback loop: an append-only log of
// submitted applications and observed outcomes, and the pure function that
// turns a snapshot of that log into Insights for the next run.
package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/job-agent/internal/types"
)

// Outcome is what happened to a submitted application.
type Outcome string

const (
	OutcomeResponse   Outcome = "response"
	OutcomeRejection  Outcome = "rejection"
	OutcomeInterview  Outcome = "interview"
	OutcomeOffer      Outcome = "offer"
	OutcomeNoResponse Outcome = "no_response"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeResponse, OutcomeRejection, OutcomeInterview, OutcomeOffer, OutcomeNoResponse:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// Positive reports whether the employer engaged with the application.
func (o Outcome) Positive() bool {
	return o == OutcomeResponse || o == OutcomeInterview || o == OutcomeOffer
}

// ApplicationRecord is a submitted application known to the learning store.
type ApplicationRecord struct {
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	WorkflowID    string    `json:"workflow_id"`
	JobKey        string    `json:"job_key"`
	Score         float64   `json:"score"`
	Keywords      []string  `json:"keywords,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// OutcomeRecord is an observed outcome, pushed asynchronously by external systems.
type OutcomeRecord struct {
	ApplicationID string    `json:"application_id"`
	Outcome       Outcome   `json:"outcome"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Snapshot is a consistent, private copy of one user's learning log.
type Snapshot struct {
	UserID       string
	Applications []ApplicationRecord
	Outcomes     []OutcomeRecord
	TakenAt      time.Time
}

// ErrUnknownApplication is returned when an outcome references no known application.
var ErrUnknownApplication = errors.New("learning: unknown application")

// Store is the durable learning log. Implementations must allow concurrent
// appends and hand out snapshots that later appends cannot change.
type Store interface {
	RecordApplication(ctx context.Context, rec ApplicationRecord) error
	RecordOutcome(ctx context.Context, applicationID string, outcome Outcome, observedAt time.Time) error
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
	SaveInsights(ctx context.Context, userID string, insights types.Insights) error
	// LatestInsights returns zero Insights when nothing was learned yet.
	LatestInsights(ctx context.Context, userID string) (types.Insights, error)
}
