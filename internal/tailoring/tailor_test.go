package tailoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/llm"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// MockLLMClient implements llm.Client for testing.
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	lastPrompt       string
	lastTier         llm.ModelTier
}

func (m *MockLLMClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.lastPrompt, m.lastTier = prompt, tier
	return m.GenerateJSONFunc(ctx, prompt, tier)
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func request() providers.TailorRequest {
	return providers.TailorRequest{
		Resume:   baseResume,
		Job:      types.JobPosting{Source: "board", ExternalID: "7", Title: "Platform Engineer", Company: "Globex", Description: "Kafka, Go, AWS"},
		Emphasis: []string{"kafka"},
	}
}

func respond(body string) *MockLLMClient {
	return &MockLLMClient{GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
		return body, nil
	}}
}

func TestLLMTailor_Success(t *testing.T) {
	client := respond(`{"content": "Jane Doe\nKafka and Go backend engineer, Acme (2019 - 2024)", "change_log": ["Led with Kafka experience", "  ", "Shortened summary"]}`)
	tailor := NewLLMTailor(client)

	doc, err := tailor.Tailor(context.Background(), request())
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Kafka and Go")
	assert.Equal(t, []string{"Led with Kafka experience", "Shortened summary"}, doc.ChangeLog)

	assert.Equal(t, llm.TierAdvanced, client.lastTier)
	assert.Contains(t, client.lastPrompt, "Emphasize, where truthful: kafka")
	assert.Contains(t, client.lastPrompt, "Globex")
	assert.Contains(t, client.lastPrompt, "Built Go services on PostgreSQL")
}

func TestLLMTailor_RejectsFabrication(t *testing.T) {
	tailor := NewLLMTailor(respond(`{"content": "Jane Doe, Kubernetes expert since 2015", "change_log": ["Added Kubernetes"]}`))

	_, err := tailor.Tailor(context.Background(), request())
	var tErr *providers.TailorError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, []string{"skill kubernetes", "year 2015"}, tErr.Violations)
	assert.False(t, providers.Retryable(err))
}

func TestLLMTailor_ProviderFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *MockLLMClient
	}{
		{name: "empty change log", client: respond(`{"content": "Jane Doe", "change_log": []}`)},
		{name: "not json", client: respond(`I rewrote it for you!`)},
		{name: "model error", client: &MockLLMClient{GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return "", errors.New("deadline exceeded")
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMTailor(tt.client).Tailor(context.Background(), request())
			var pErr *providers.ProviderError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, "tailor", pErr.Provider)
		})
	}
}

func TestLLMTailor_EmptyResume(t *testing.T) {
	req := request()
	req.Resume = "  "

	_, err := NewLLMTailor(respond(`{}`)).Tailor(context.Background(), req)
	var tErr *providers.TailorError
	assert.ErrorAs(t, err, &tErr)
}
