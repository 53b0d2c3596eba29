package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApprovalConfig_Defaults(t *testing.T) {
	t.Setenv("APPROVAL_SECRET", "a-long-enough-secret")
	t.Setenv("APPROVAL_BASE_URL", "")
	t.Setenv("APPROVAL_WEBHOOK_URL", "")

	cfg, err := NewApprovalConfig()
	require.NoError(t, err)
	assert.Equal(t, "a-long-enough-secret", cfg.Secret)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL, "should default the base URL")
	assert.Empty(t, cfg.WebhookURL)
}

func TestNewApprovalConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr string
	}{
		{name: "missing secret", secret: "", wantErr: "APPROVAL_SECRET is required"},
		{name: "short secret", secret: "short", wantErr: "at least 16 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APPROVAL_SECRET", tt.secret)
			cfg, err := NewApprovalConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApprovalConfig_Normalize(t *testing.T) {
	cfg := ApprovalConfig{Secret: "0123456789abcdef"}
	assert.Error(t, cfg.Normalize(), "empty base URL")
	cfg.BaseURL = "http://x"
	assert.NoError(t, cfg.Normalize())
}
