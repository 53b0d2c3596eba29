package types

import (
	"time"
)

// JobPosting is a single posting returned by a job source.
type JobPosting struct {
	Source      string    `json:"source"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	JobType     string    `json:"job_type,omitempty"`
	SalaryMin   int       `json:"salary_min,omitempty"`
	SalaryMax   int       `json:"salary_max,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
	// Seq is the position of the posting in scrape order within a run.
	Seq int `json:"seq"`
}

// Key returns the composite deduplication key of the posting.
func (j JobPosting) Key() string {
	return j.Source + ":" + j.ExternalID
}

// Evaluation records that a scraped job went through scoring once.
type Evaluation struct {
	JobKey    string  `json:"job_key"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
	Matched   bool    `json:"matched"`
	// Skipped is set when scoring failed and the job was left out of this run.
	Skipped bool `json:"skipped,omitempty"`
}

// MatchedJob is a scraped job that scored at or above the active threshold.
type MatchedJob struct {
	Job       JobPosting `json:"job"`
	Score     float64    `json:"score"`
	Rationale string     `json:"rationale"`
}

// Key returns the key of the underlying posting.
func (m MatchedJob) Key() string {
	return m.Job.Key()
}

// TailoredDocument is a resume tailored for the current job.
type TailoredDocument struct {
	Content   string   `json:"content"`
	ChangeLog []string `json:"change_log"`
}

// Receipt is returned by the application submitter.
type Receipt struct {
	ApplicationID string    `json:"application_id"`
	Reference     string    `json:"reference,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// JobResult enumerates terminal outcomes of a job within a run.
type JobResult string

const (
	JobResultApplied      JobResult = "applied"
	JobResultRejected     JobResult = "rejected"
	JobResultExpired      JobResult = "expired"
	JobResultTailorFailed JobResult = "tailor_failed"
	JobResultSubmitFailed JobResult = "submit_failed"
)

// JobOutcome is the terminal result for one matched job.
type JobOutcome struct {
	JobKey   string    `json:"job_key"`
	Result   JobResult `json:"result"`
	Score    float64   `json:"score"`
	Receipt  *Receipt  `json:"receipt,omitempty"`
	Feedback string    `json:"feedback,omitempty"`
	At       time.Time `json:"at"`
}
