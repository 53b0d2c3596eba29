// Package providers defines the capability providers the workflow agents call
// and the bounded-retry wrapper every call goes through.
package providers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/types"
)

// Scraper fetches postings from one job source.
type Scraper interface {
	// Name identifies the source; it becomes JobPosting.Source.
	Name() string
	Scrape(ctx context.Context, prefs types.Preferences) ([]types.JobPosting, error)
}

// Score is the fit of a job against the user's preferences.
type Score struct {
	Value     float64 // 0.0-1.0
	Rationale string
}

// Scorer rates a job against preferences, optionally shifted by learned insights.
type Scorer interface {
	Score(ctx context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*Score, error)
}

// TailorRequest carries the inputs for resume tailoring.
type TailorRequest struct {
	Resume string
	Job    types.JobPosting
	// Emphasis lists keywords that historically drew responses.
	Emphasis []string
}

// Tailor rewrites a base resume for a job without inventing facts.
type Tailor interface {
	Tailor(ctx context.Context, req TailorRequest) (*types.TailoredDocument, error)
}

// NotifyRequest is everything a human needs to approve or reject an application.
type NotifyRequest struct {
	WorkflowID uuid.UUID
	Job        types.JobPosting
	Document   types.TailoredDocument
	Score      float64
	Rationale  string
	SentAt     time.Time
	ExpiresAt  time.Time
}

// ApprovalHandle identifies a sent approval request.
type ApprovalHandle struct {
	Token     string
	ExpiresAt time.Time
}

// Notifier sends approval requests.
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest) (*ApprovalHandle, error)
}

// Submitter submits an application.
type Submitter interface {
	Submit(ctx context.Context, job types.JobPosting, doc types.TailoredDocument) (*types.Receipt, error)
}

// Set bundles the providers an engine is wired with.
type Set struct {
	Sources   []Scraper
	Scorer    Scorer
	Tailor    Tailor
	Notifier  Notifier
	Submitter Submitter
}
