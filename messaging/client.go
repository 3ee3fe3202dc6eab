// Package messaging implements the outbound SMS client for the
// OpenPhone-style provider API. The health-check subsystem uses it to send
// probe messages; CRM features use the same client for customer-facing
// notifications.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clarioncrm/clarion"
)

// RequestModifierFunc can modify a request before it is sent, for example
// to add tracing headers.
type RequestModifierFunc func(*http.Request) *http.Request

// Client is an HTTP client for the provider's messaging API. It is safe
// for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	modifier   RequestModifierFunc
	logger     clarion.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for verbose request logging.
func WithLogger(logger clarion.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying http.Client. Mostly useful in
// tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRequestModifier installs a modifier applied to every outgoing
// request after the standard auth and content headers are set.
func WithRequestModifier(modifier RequestModifierFunc) ClientOption {
	return func(c *Client) {
		c.modifier = modifier
	}
}

// NewClient creates a messaging client for the given configuration.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     clarion.NoopLogger{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// sendMessageRequest is the provider wire format for message creation.
type sendMessageRequest struct {
	To      []string `json:"to"`
	From    string   `json:"from"`
	Content string   `json:"content"`
}

// sendMessageResponse covers both success and rejection envelopes.
type sendMessageResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		ID string `json:"id"`
	} `json:"data"`
}

// SendMessage delivers text to the given number and returns the
// provider-assigned message id. Rejections and transport failures are
// returned as errors; callers that need a non-raising contract (the
// health-check service) translate them into status values.
func (c *Client) SendMessage(ctx context.Context, to, text string) (string, error) {
	if to == "" {
		return "", ErrToNumberEmpty
	}
	if text == "" {
		return "", ErrTextEmpty
	}

	body, err := json.Marshal(sendMessageRequest{
		To:      []string{to},
		From:    c.config.FromNumber,
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.modifier != nil {
		req = c.modifier(req)
	}

	if c.config.Verbose {
		c.logger.Debug("Sending message", "url", url, "to", to, "bytes", len(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading send response: %w", err)
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decoding send response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !decoded.Success {
		reason := decoded.Error
		if reason == "" {
			reason = fmt.Sprintf("http status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrSendRejected, reason)
	}
	if decoded.Data.ID == "" {
		return "", ErrMissingMessageID
	}

	if c.config.Verbose {
		c.logger.Debug("Message accepted", "to", to, "messageId", decoded.Data.ID)
	}
	return decoded.Data.ID, nil
}
