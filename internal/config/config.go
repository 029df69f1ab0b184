// Package config loads and validates process configuration for the
// approval reminder job. All values come from environment variables (the
// job runs under a scheduler that injects them as config vars), with flag
// overrides applied by the CLI layer on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIURL         = "https://api.ordercloud.io/v1"
	defaultAuthURL        = "https://auth.ordercloud.io"
	defaultTemplate       = "approval-over-48-hours"
	defaultThresholdHours = 48
	defaultTimeoutSeconds = 15
)

// Error is a fatal configuration error. It aborts the run before any
// network call is made.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Config holds everything the reminder job needs for one run.
type Config struct {
	// Back-office user credentials. The user carries only the roles the
	// job needs (order admin, order approver reader, buyer user reader).
	ClientID     string
	ClientSecret string
	// Scope is the ordered role list sent as the OAuth scope string.
	Scope []string

	APIURL  string
	AuthURL string

	// MandrillKey authenticates against the transactional email API.
	MandrillKey string
	// Template is the transactional template slug for the reminder.
	Template string

	// Threshold is how long an order may sit awaiting approval before a
	// reminder goes out.
	Threshold time.Duration
	// HTTPTimeout bounds every individual remote call.
	HTTPTimeout time.Duration

	// DryRun discovers and resolves but skips sends and flag patches.
	DryRun bool
}

// FromEnv builds a Config from environment variables, applying defaults
// for everything optional. It does not validate; call Validate before use.
func FromEnv() Config {
	cfg := Config{
		ClientID:     os.Getenv("OC_CLIENT_ID"),
		ClientSecret: os.Getenv("OC_CLIENT_SECRET"),
		Scope:        splitScope(os.Getenv("OC_SCOPE")),
		APIURL:       envOr("OC_API_URL", defaultAPIURL),
		AuthURL:      envOr("OC_AUTH_URL", defaultAuthURL),
		MandrillKey:  os.Getenv("MANDRILL_API_KEY"),
		Template:     envOr("REMINDER_TEMPLATE", defaultTemplate),
		Threshold:    time.Duration(envIntOr("REMINDER_THRESHOLD_HOURS", defaultThresholdHours)) * time.Hour,
		HTTPTimeout:  time.Duration(envIntOr("HTTP_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
	}
	return cfg
}

// Validate returns a *Error describing the first missing or invalid field.
// The checks mirror the preflight the job has always done: no network call
// happens until these pass.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return &Error{Field: "OC_CLIENT_ID", Reason: "is required"}
	}
	if c.ClientSecret == "" {
		return &Error{Field: "OC_CLIENT_SECRET", Reason: "is required"}
	}
	if len(c.Scope) == 0 {
		return &Error{Field: "OC_SCOPE", Reason: "must name at least one role"}
	}
	if c.MandrillKey == "" {
		return &Error{Field: "MANDRILL_API_KEY", Reason: "is required"}
	}
	if c.Template == "" {
		return &Error{Field: "REMINDER_TEMPLATE", Reason: "must not be empty"}
	}
	if c.Threshold <= 0 {
		return &Error{Field: "REMINDER_THRESHOLD_HOURS", Reason: "must be positive"}
	}
	if c.HTTPTimeout <= 0 {
		return &Error{Field: "HTTP_TIMEOUT_SECONDS", Reason: "must be positive"}
	}
	return nil
}

// splitScope parses a comma-separated role list, trimming blanks.
func splitScope(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scope := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scope = append(scope, s)
		}
	}
	return scope
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
