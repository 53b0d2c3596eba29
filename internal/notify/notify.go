// Package notify sends approval requests carrying signed approve/reject links.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/job-agent/internal/approval"
	"github.com/jonathan/job-agent/internal/providers"
)

// Message is the body posted to the approval webhook.
type Message struct {
	WorkflowID string    `json:"workflow_id"`
	JobKey     string    `json:"job_key"`
	Title      string    `json:"title"`
	Company    string    `json:"company"`
	JobURL     string    `json:"job_url,omitempty"`
	Score      float64   `json:"score"`
	Rationale  string    `json:"rationale"`
	Resume     string    `json:"resume"`
	ChangeLog  []string  `json:"change_log"`
	ApproveURL string    `json:"approve_url"`
	RejectURL  string    `json:"reject_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	Text       string    `json:"text"`
	Token      string    `json:"-"`
}

// Links returns the approve and reject callback URLs for token.
func Links(baseURL, token string) (approve, reject string) {
	base := strings.TrimRight(baseURL, "/") + "/approve/" + token
	return base + "?action=approve", base + "?action=reject"
}

// BuildMessage issues a token for req and renders the message around it.
func BuildMessage(issuer *approval.Issuer, baseURL string, req providers.NotifyRequest) (*Message, error) {
	token, err := issuer.Issue(req.WorkflowID, req.Job.Key(), req.SentAt, req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	approveURL, rejectURL := Links(baseURL, token)

	msg := &Message{
		WorkflowID: req.WorkflowID.String(),
		JobKey:     req.Job.Key(),
		Title:      req.Job.Title,
		Company:    req.Job.Company,
		JobURL:     req.Job.URL,
		Score:      req.Score,
		Rationale:  req.Rationale,
		Resume:     req.Document.Content,
		ChangeLog:  req.Document.ChangeLog,
		ApproveURL: approveURL,
		RejectURL:  rejectURL,
		ExpiresAt:  req.ExpiresAt,
		Token:      token,
	}
	msg.Text = fmt.Sprintf("%s at %s (match %.0f%%)\n%s\nApprove: %s\nReject: %s\nExpires %s",
		req.Job.Title, req.Job.Company, req.Score*100, req.Rationale,
		approveURL, rejectURL, req.ExpiresAt.Format(time.RFC1123))
	return msg, nil
}

// WebhookNotifier posts approval requests as JSON to a webhook (Slack-compatible "text").
type WebhookNotifier struct {
	URL     string
	BaseURL string
	Issuer  *approval.Issuer
	Client  *http.Client
}

// NewWebhookNotifier creates a notifier posting to webhookURL with links rooted at baseURL.
func NewWebhookNotifier(webhookURL, baseURL string, issuer *approval.Issuer) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("approval issuer is required")
	}
	return &WebhookNotifier{
		URL:     webhookURL,
		BaseURL: baseURL,
		Issuer:  issuer,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Notify implements providers.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, req providers.NotifyRequest) (*providers.ApprovalHandle, error) {
	msg, err := BuildMessage(n.Issuer, n.BaseURL, req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(httpReq)
	if err != nil {
		return nil, &providers.ProviderError{Provider: "notifier", Message: "webhook request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providers.ProviderError{Provider: "notifier", Message: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}
	}
	return &providers.ApprovalHandle{Token: msg.Token, ExpiresAt: req.ExpiresAt}, nil
}

// LogNotifier writes approval requests to a logger. Useful when no webhook is configured;
// the operator approves through the printed links or the CLI.
type LogNotifier struct {
	BaseURL string
	Issuer  *approval.Issuer
	Logger  *log.Logger
}

// Notify implements providers.Notifier.
func (n *LogNotifier) Notify(_ context.Context, req providers.NotifyRequest) (*providers.ApprovalHandle, error) {
	msg, err := BuildMessage(n.Issuer, n.BaseURL, req)
	if err != nil {
		return nil, err
	}
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[APPROVAL] workflow %s needs a decision\n%s\ntoken: %s", msg.WorkflowID, msg.Text, msg.Token)
	return &providers.ApprovalHandle{Token: msg.Token, ExpiresAt: req.ExpiresAt}, nil
}
