package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Rule limits one endpoint. A Path ending in "/" matches by prefix.
type Rule struct {
	Path   string
	Method string
	Limit  int           // requests per Window; 0 means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Default         Rule
	Rules           []Rule
	Whitelist       map[string]bool
	CleanupInterval time.Duration
	// IdleTTL is how long an unused client entry is kept.
	IdleTTL time.Duration
}

// DefaultRules protects the endpoints that start work or resolve approvals.
// Approval links are public, so the callback gets the strictest per-client limit.
func DefaultRules() []Rule {
	return []Rule{
		{Path: "/workflows", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/workflows/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/approve/", Method: "GET", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/approve/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/outcomes", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
	}
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Default:         Rule{Limit: 600, Window: time.Minute},
		Rules:           DefaultRules(),
		Whitelist:       map[string]bool{},
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
	}
}

// LoadConfig reads RATE_LIMIT_ENABLED, RATE_LIMIT_DEFAULT_LIMIT,
// RATE_LIMIT_DEFAULT_WINDOW and RATE_LIMIT_WHITELIST on top of DefaultConfig.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.Enabled)
	cfg.Default.Limit = getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", cfg.Default.Limit)
	cfg.Default.Window = getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", cfg.Default.Window)
	cfg.Whitelist = parseList(os.Getenv("RATE_LIMIT_WHITELIST"))
	return cfg
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func parseList(list string) map[string]bool {
	out := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = true
		}
	}
	return out
}
