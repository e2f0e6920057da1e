// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"assistant-router/internal/common/config"
	stderrors "assistant-router/internal/common/errors"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/metrics"
	"assistant-router/internal/models"
)

// Gateway is the model-gateway contract the router consumes. Implementations
// retry transient transport failures internally; callers treat a returned
// error as terminal for the current request.
type Gateway interface {
	AnalyzeQuestion(ctx context.Context, question, template string) (*models.SemanticAnalysis, error)
	SendMessage(ctx context.Context, prompt string, opts Options) (string, error)
	SendJSON(ctx context.Context, prompt string, opts Options) (map[string]any, error)
}

// Options tunes a single model call. Zero values fall back to the client's
// configured defaults.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to the model gateway over HTTP with exponential-backoff
// retries.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg config.LLMConfig, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		// Timeouts come from the per-call context, not the transport.
		httpClient: &http.Client{},
		logger:     log.With(map[string]interface{}{"component": "llm"}),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

// AnalyzeQuestion asks the gateway to run the named analysis template over a
// question and decodes the structured payload. Output that is not valid JSON
// is a parse failure, distinct from transport failure.
func (c *Client) AnalyzeQuestion(ctx context.Context, question, template string) (*models.SemanticAnalysis, error) {
	body := map[string]any{
		"question": question,
		"template": template,
	}
	text, err := c.post(ctx, "/api/ai/analyze", body, c.timeout(0))
	if err != nil {
		return nil, err
	}

	var analysis models.SemanticAnalysis
	if err := json.Unmarshal(extractJSON(text), &analysis); err != nil {
		return nil, stderrors.NewLLMParseFailedError(err)
	}
	return &analysis, nil
}

// SendMessage sends a prompt and returns the model's text reply.
func (c *Client) SendMessage(ctx context.Context, prompt string, opts Options) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.temperature(opts.Temperature),
		MaxTokens:   c.maxTokens(opts.MaxTokens),
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: prompt})

	return c.post(ctx, "/api/ai/generate", req, c.timeout(opts.Timeout))
}

// SendJSON sends a prompt and decodes the reply as a JSON object. Unparsable
// output is wrapped as {"raw": text} instead of failing, for callers that can
// work with plain text.
func (c *Client) SendJSON(ctx context.Context, prompt string, opts Options) (map[string]any, error) {
	text, err := c.SendMessage(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(extractJSON(text), &out); err != nil {
		c.logger.Debug("model output is not JSON, returning raw text", map[string]interface{}{
			"error": err.Error(),
		})
		return map[string]any{"raw": text}, nil
	}
	return out, nil
}

// post runs one gateway call with retries. Backoff doubles per attempt from
// the configured base, capped; the returned error carries the last
// underlying failure.
func (c *Client) post(ctx context.Context, path string, body any, timeout time.Duration) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", stderrors.NewLLMTransportFailedError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			metrics.LLMRetries.Inc()
			backoff := time.Duration(c.cfg.BackoffBase) * time.Millisecond * (1 << (attempt - 2))
			if maxBackoff := time.Duration(c.cfg.BackoffCap) * time.Millisecond; backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-time.After(backoff):
			case <-callCtx.Done():
				return "", stderrors.NewLLMTimeoutError(path)
			}
		}

		text, err := c.doOnce(callCtx, path, payload)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return "", stderrors.NewLLMTimeoutError(path)
		}

		lastErr = err
		c.logger.Warn("model gateway call failed, retrying", map[string]interface{}{
			"path":    path,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	return "", stderrors.NewLLMTransportFailedError(lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err == nil && chat.Output.Text != "" {
		return chat.Output.Text, nil
	}
	// Gateways that reply with bare text or bare JSON pass through as-is.
	return string(raw), nil
}

func (c *Client) timeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return config.GetDuration(c.cfg.Timeout)
}

func (c *Client) temperature(override float64) float64 {
	if override > 0 {
		return override
	}
	return c.cfg.Temperature
}

func (c *Client) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	return c.cfg.MaxTokens
}

// extractJSON trims markdown fences and surrounding prose so a reply like
// "```json\n{...}\n```" still decodes.
func extractJSON(text string) []byte {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return []byte(text[start : i+1])
				}
			}
		}
	}
	return []byte(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
