// Package llm wraps the language model used by the scoring and tailoring providers.
package llm

import "fmt"

// ModelTier selects a model by capability.
type ModelTier string

const (
	// TierLite handles cheap high-volume calls such as scoring postings.
	TierLite ModelTier = "lite"
	// TierStandard is the default for structured output.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for resume rewriting.
	TierAdvanced ModelTier = "advanced"
)

// ParseTier validates a tier name.
func ParseTier(s string) (ModelTier, error) {
	switch t := ModelTier(s); t {
	case TierLite, TierStandard, TierAdvanced:
		return t, nil
	}
	return "", fmt.Errorf("unknown model tier %q", s)
}

// Provider names an LLM backend.
type Provider string

// ProviderGemini is the only backend wired today.
const ProviderGemini Provider = "gemini"

// DefaultTemperature keeps scoring and rewriting output stable between calls.
const DefaultTemperature = 0.1

// Config maps tiers to model names.
type Config struct {
	Provider    Provider             `yaml:"provider"`
	Models      map[ModelTier]string `yaml:"models"`
	Temperature float32              `yaml:"temperature"`
}

// DefaultConfig returns the Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: DefaultTemperature,
	}
}

// GetModel returns the model for a tier, falling back to standard and then lite.
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model, ok := c.Models[t]; ok && model != "" {
			return model
		}
	}
	return ""
}
