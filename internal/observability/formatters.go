// Package observability renders workflow progress and summaries for the CLI and API.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Summary condenses a workflow state into counts and the interesting tail.
type Summary struct {
	WorkflowID   string                `json:"workflow_id"`
	UserID       string                `json:"user_id"`
	Status       types.WorkflowStatus  `json:"status"`
	Version      int64                 `json:"version"`
	Scraped      int                   `json:"scraped"`
	Matched      int                   `json:"matched"`
	Applied      int                   `json:"applied"`
	Processed    int                   `json:"processed"`
	Errors       int                   `json:"errors"`
	Decisions    int                   `json:"decisions"`
	CurrentJob   string                `json:"current_job,omitempty"`
	Approval     *types.ApprovalRecord `json:"approval,omitempty"`
	LastDecision *types.Decision       `json:"last_decision,omitempty"`
	Threshold    float64               `json:"threshold"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Summarize builds a Summary. The approval token is never included.
func Summarize(s *types.WorkflowState, defaultThreshold float64) Summary {
	sum := Summary{
		WorkflowID: s.WorkflowID.String(),
		UserID:     s.UserID,
		Status:     s.Status,
		Version:    s.Version,
		Scraped:    len(s.ScrapedJobs),
		Matched:    len(s.MatchedJobs),
		Processed:  len(s.ProcessedJobs),
		Errors:     len(s.Errors),
		Decisions:  len(s.Decisions),
		Threshold:  s.LearningInsights.Threshold(defaultThreshold),
		UpdatedAt:  s.UpdatedAt,
	}
	for _, p := range s.ProcessedJobs {
		if p.Result == types.JobResultApplied {
			sum.Applied++
		}
	}
	if s.CurrentJob != nil {
		sum.CurrentJob = s.CurrentJob.Key()
	}
	if s.ApprovalRecord != nil {
		rec := *s.ApprovalRecord
		rec.Token = ""
		sum.Approval = &rec
	}
	if n := len(s.Decisions); n > 0 {
		last := s.Decisions[n-1]
		sum.LastDecision = &last
	}
	return sum
}

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSummary outputs the workflow status box.
func (p *Printer) PrintSummary(s Summary) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Workflow:  %s\n", s.WorkflowID)
	fmt.Fprintf(&sb, "User:      %s\n", s.UserID)
	fmt.Fprintf(&sb, "Status:    %s (v%d)\n", s.Status, s.Version)
	fmt.Fprintf(&sb, "Jobs:      %d scraped, %d matched, %d applied\n", s.Scraped, s.Matched, s.Applied)
	fmt.Fprintf(&sb, "Log:       %d decisions, %d errors\n", s.Decisions, s.Errors)
	fmt.Fprintf(&sb, "Threshold: %.2f", s.Threshold)
	if s.CurrentJob != "" {
		fmt.Fprintf(&sb, "\nCurrent:   %s", s.CurrentJob)
	}
	if s.Approval != nil {
		fmt.Fprintf(&sb, "\nApproval:  %s, expires %s", s.Approval.Status, s.Approval.ExpiresAt.Format(time.RFC3339))
	}
	if s.LastDecision != nil {
		fmt.Fprintf(&sb, "\nLast:      %s/%s", s.LastDecision.Agent, s.LastDecision.Action)
	}
	p.printBox("WORKFLOW STATUS", sb.String())
}

// PrintMatches outputs the top matched jobs with scores.
func (p *Printer) PrintMatches(s *types.WorkflowState) {
	if len(s.MatchedJobs) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Matched %d of %d jobs\n\n", len(s.MatchedJobs), len(s.ScrapedJobs))
	count := min(len(s.MatchedJobs), maxItemsToShow)
	for i := 0; i < count; i++ {
		m := s.MatchedJobs[i]
		fmt.Fprintf(&sb, "#%d  %.2f  %s @ %s\n", i+1, m.Score, m.Job.Title, m.Job.Company)
	}
	if len(s.MatchedJobs) > maxItemsToShow {
		fmt.Fprintf(&sb, "... and %d more\n", len(s.MatchedJobs)-maxItemsToShow)
	}
	p.printBox("MATCHED JOBS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcomes outputs the terminal result of every processed job.
func (p *Printer) PrintOutcomes(s *types.WorkflowState) {
	if len(s.ProcessedJobs) == 0 {
		return
	}
	var sb strings.Builder
	for _, o := range s.ProcessedJobs {
		fmt.Fprintf(&sb, "%-14s %s", o.Result, o.JobKey)
		if o.Receipt != nil {
			fmt.Fprintf(&sb, " (%s)", o.Receipt.ApplicationID)
		}
		sb.WriteString("\n")
	}
	p.printBox("PROCESSED JOBS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintInsights outputs learned metrics and the strongest keyword weights.
func (p *Printer) PrintInsights(in types.Insights) {
	if len(in.Metrics) == 0 {
		return
	}

	var sb strings.Builder
	names := make([]string, 0, len(in.Metrics))
	for k := range in.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&sb, "%-16s %.3f\n", k, in.Metrics[k])
	}
	if top := in.TopKeywords(maxItemsToShow); len(top) > 0 {
		fmt.Fprintf(&sb, "\nKeywords: %s", strings.Join(top, ", "))
	}
	p.printBox("LEARNING INSIGHTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTransition outputs one progress line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintTransition(ev workflow.TransitionEvent) {
	mark := "✓"
	if ev.Failed {
		mark = "✗"
	}
	fmt.Fprintf(p.out, "  %s %-32s → %s\n", mark, ev.Step, ev.Status)
}
