// Package mailer sends transactional template email through the Mandrill
// messages API. One method exists because the reminder pipeline sends one
// kind of message: a stored template with global merge vars, delivered to
// every recipient of an order in a single call.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://mandrillapp.com/api/1.0"
	defaultTimeout = 15 * time.Second
	userAgent      = "approval-reminder/v1"
)

// Recipient is one entry of a message's to-list.
type Recipient struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

// MergeVar is one template substitution variable.
type MergeVar struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Message is the message body of a template send.
type Message struct {
	To              []Recipient `json:"to"`
	GlobalMergeVars []MergeVar  `json:"global_merge_vars"`
}

// templateRequest is the wire payload of messages/send-template.
type templateRequest struct {
	Key             string     `json:"key"`
	TemplateName    string     `json:"template_name"`
	TemplateContent []MergeVar `json:"template_content"`
	Message         Message    `json:"message"`
}

// SendResult is the provider's per-recipient delivery report.
type SendResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason"`
	ID           string `json:"_id"`
}

// apiError is the provider's error envelope, returned instead of a result
// array when the call itself fails (bad key, unknown template, ...).
type apiError struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SendError is a provider-reported send failure.
type SendError struct {
	Name    string
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("mandrill %s: %s", e.Name, e.Message)
}

// Config holds the settings for creating a Mailer.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Mailer sends template email. Safe for concurrent use.
type Mailer struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	apiKey     string
}

// New creates a Mailer. Returns an error if the API key is empty.
func New(logger *zap.Logger, cfg Config) (*Mailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mandrill API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Mailer{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("mailer"),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
	}, nil
}

// SendTemplate renders the named stored template with the message's merge
// vars and sends it to the full to-list in one call. It returns the
// per-recipient results on success; a *SendError when the provider refused
// the call; a wrapped transport error otherwise.
func (m *Mailer) SendTemplate(ctx context.Context, templateName string, msg Message) ([]SendResult, error) {
	payload := templateRequest{
		Key:          m.apiKey,
		TemplateName: templateName,
		// The template defines its own blocks; content is merged via
		// global_merge_vars, so this stays a single placeholder region.
		TemplateContent: []MergeVar{{Name: "main", Content: "content"}},
		Message:         msg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal template send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/messages/send-template.json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send template %q: %w", templateName, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read send response: %w", err)
	}

	m.logger.Debug("Template send",
		zap.String("template", templateName),
		zap.Int("recipients", len(msg.To)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	// The provider signals call-level failure with a JSON error object and
	// a non-2xx status; per-recipient rejection comes back inside a 200.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Status == "error" {
			return nil, &SendError{Name: apiErr.Name, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("send template %q: provider returned HTTP %d", templateName, resp.StatusCode)
	}

	var results []SendResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return results, nil
}
