package config

import (
	"fmt"
	"os"
)

// minSecretLength is the shortest HMAC secret accepted for approval links.
const minSecretLength = 16

// ApprovalConfig holds settings for approval links and notifications.
type ApprovalConfig struct {
	Secret     string `yaml:"-"`
	BaseURL    string `yaml:"base_url"`
	WebhookURL string `yaml:"webhook_url"`
}

// NewApprovalConfig reads APPROVAL_SECRET (required), APPROVAL_BASE_URL
// (default http://localhost:8080) and APPROVAL_WEBHOOK_URL from the environment.
func NewApprovalConfig() (*ApprovalConfig, error) {
	cfg := &ApprovalConfig{
		Secret:     os.Getenv("APPROVAL_SECRET"),
		BaseURL:    os.Getenv("APPROVAL_BASE_URL"),
		WebhookURL: os.Getenv("APPROVAL_WEBHOOK_URL"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize validates the configuration.
func (c *ApprovalConfig) Normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("APPROVAL_SECRET is required but not set")
	}
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("APPROVAL_SECRET must be at least %d characters, got: %d", minSecretLength, len(c.Secret))
	}
	if c.BaseURL == "" {
		return fmt.Errorf("approval base URL cannot be empty")
	}
	return nil
}
