// Package submit posts applications to an applicant tracking endpoint.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// Application is the body posted for one submission.
type Application struct {
	JobKey     string   `json:"job_key"`
	ExternalID string   `json:"external_id"`
	Source     string   `json:"source"`
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	JobURL     string   `json:"job_url,omitempty"`
	Resume     string   `json:"resume"`
	ChangeLog  []string `json:"change_log,omitempty"`
	Applicant  string   `json:"applicant,omitempty"`
}

type response struct {
	ApplicationID string `json:"application_id"`
	Reference     string `json:"reference"`
	Error         string `json:"error"`
}

// WebhookSubmitter submits applications as JSON over HTTP.
type WebhookSubmitter struct {
	URL       string
	Applicant string
	Headers   map[string]string
	Client    *http.Client
}

// NewWebhookSubmitter creates a submitter for endpoint.
func NewWebhookSubmitter(endpoint, applicant string) (*WebhookSubmitter, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("submit endpoint is required")
	}
	return &WebhookSubmitter{
		URL:       endpoint,
		Applicant: applicant,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Submit implements providers.Submitter. 4xx responses are permanent failures;
// network errors and 5xx may be retried.
func (s *WebhookSubmitter) Submit(ctx context.Context, job types.JobPosting, doc types.TailoredDocument) (*types.Receipt, error) {
	body, err := json.Marshal(Application{
		JobKey:     job.Key(),
		ExternalID: job.ExternalID,
		Source:     job.Source,
		Title:      job.Title,
		Company:    job.Company,
		JobURL:     job.URL,
		Resume:     doc.Content,
		ChangeLog:  doc.ChangeLog,
		Applicant:  s.Applicant,
	})
	if err != nil {
		return nil, &providers.SubmissionError{Message: "failed to encode application", Permanent: true, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &providers.SubmissionError{Message: "failed to create request", Permanent: true, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", job.Key())
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &providers.SubmissionError{Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed response
	_ = json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 500:
		return nil, &providers.SubmissionError{Message: errorText(parsed, "server error"), StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &providers.SubmissionError{Message: "rate limited", StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &providers.SubmissionError{Message: errorText(parsed, "rejected"), StatusCode: resp.StatusCode, Permanent: true}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &providers.SubmissionError{Message: "unexpected response", StatusCode: resp.StatusCode, Permanent: true}
	}

	return &types.Receipt{
		ApplicationID: parsed.ApplicationID,
		Reference:     parsed.Reference,
	}, nil
}

func errorText(r response, fallback string) string {
	if r.Error != "" {
		return r.Error
	}
	return fallback
}
