package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

var (
	testJob = types.JobPosting{Source: "board", ExternalID: "7", Title: "Go Engineer", Company: "Acme"}
	testDoc = types.TailoredDocument{Content: "resume body", ChangeLog: []string{"moved Go first"}}
)

func TestWebhookSubmitter_Success(t *testing.T) {
	var got Application
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "board:7", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer x", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"application_id":"ats-1","reference":"REF-9"}`))
	}))
	defer server.Close()

	s, err := NewWebhookSubmitter(server.URL, "jane@example.com")
	require.NoError(t, err)
	s.Headers = map[string]string{"Authorization": "Bearer x"}

	receipt, err := s.Submit(context.Background(), testJob, testDoc)
	require.NoError(t, err)
	assert.Equal(t, "ats-1", receipt.ApplicationID)
	assert.Equal(t, "REF-9", receipt.Reference)
	assert.Equal(t, "resume body", got.Resume)
	assert.Equal(t, "jane@example.com", got.Applicant)
	assert.Equal(t, "board:7", got.JobKey)
}

func TestWebhookSubmitter_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		message   string
	}{
		{name: "server error retries", status: http.StatusInternalServerError, message: "server error"},
		{name: "rate limit retries", status: http.StatusTooManyRequests, message: "rate limited"},
		{name: "closed posting is permanent", status: http.StatusGone, body: `{"error":"posting closed"}`, permanent: true, message: "posting closed"},
		{name: "bad request is permanent", status: http.StatusBadRequest, permanent: true, message: "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s, err := NewWebhookSubmitter(server.URL, "")
			require.NoError(t, err)

			_, err = s.Submit(context.Background(), testJob, testDoc)
			var subErr *providers.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.status, subErr.StatusCode)
			assert.Equal(t, tt.permanent, subErr.Permanent)
			assert.Equal(t, !tt.permanent, providers.Retryable(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestWebhookSubmitter_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	s, err := NewWebhookSubmitter(url, "")
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), testJob, testDoc)
	require.Error(t, err)
	assert.True(t, providers.Retryable(err))
}

func TestNewWebhookSubmitter_RequiresEndpoint(t *testing.T) {
	_, err := NewWebhookSubmitter("", "")
	assert.Error(t, err)
}
