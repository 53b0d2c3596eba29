package matching

import (
	"context"

	"github.com/jonathan/job-agent/internal/llm"
)

// MockLLMClient implements llm.Client for testing.
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	prompts          []string
	tiers            []llm.ModelTier
}

func (m *MockLLMClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.tiers = append(m.tiers, tier)
	return m.GenerateJSONFunc(ctx, prompt, tier)
}

func (m *MockLLMClient) GetModel(llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }
