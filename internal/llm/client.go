// Package llm is a minimal structured-completion client for the OpenAI
// Responses API. Only schema-constrained JSON output is supported.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client produces a JSON document that conforms to schema.
type Client interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

var ErrNoOutput = errors.New("no output_text found in response")

// HTTPError carries a non-2xx response from the completion service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing LLM API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{cfg: cfg, httpClient: &http.Client{}}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model       string    `json:"model"`
	Input       []message `json:"input"`
	Temperature *float64  `json:"temperature,omitempty"`
	Text        struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *HTTPClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := responsesRequest{
		Model: c.cfg.Model,
		Input: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if c.cfg.Temperature > 0 {
		t := c.cfg.Temperature
		req.Temperature = &t
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doWithRetry(ctx, "/v1/responses", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoOutput
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("model returned invalid JSON: %s", text)
	}
	return json.RawMessage(text), nil
}

// doWithRetry bounds each attempt by the configured timeout and retries a
// timed-out or retryable attempt exactly once.
func (c *HTTPClient) doWithRetry(ctx context.Context, path string, body, out any) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = c.doOnce(ctx, path, body, out)
		if err == nil || !isRetryable(ctx, err) {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("LLM request failed, retrying")
	}
	return err
}

func (c *HTTPClient) doOnce(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("llm decode error: %w", err)
	}
	return nil
}

// isRetryable treats per-attempt timeouts, transient network errors, 408,
// 429 and 5xx as retryable. Cancellation of the caller's context is not.
func isRetryable(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	}
	return false
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}
