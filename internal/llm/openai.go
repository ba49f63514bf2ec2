// Package llm is a thin client for OpenAI-compatible chat completion
// endpoints, with streaming support.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"prodscout/internal/chat"
)

// Config holds connection settings for a completion endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns settings for the OpenAI API.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "chatgpt-4o-latest",
		Timeout: 2 * time.Minute,
	}
}

// GenParams are the fixed generation parameters sent with every completion.
type GenParams struct {
	Temperature float64
	MaxTokens   int
}

// CompletionError reports a failed completion call. It is never recovered
// here; the session layer surfaces it and leaves history untouched.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion (%s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client from config.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Wire types for the chat completions protocol.

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model         string            `json:"model"`
	Messages      []apiMessage      `json:"messages"`
	Temperature   float64           `json:"temperature"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	StreamOptions *apiStreamOptions `json:"stream_options,omitempty"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiChoice struct {
	Message *apiMessage `json:"message,omitempty"`
	Delta   *apiMessage `json:"delta,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// backoff waits out the exponential retry delay for attempt, returning early
// with the context's error when the caller gives up.
func backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(1<<uint(attempt-1)) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toAPIMessages(history []chat.Message) []apiMessage {
	msgs := make([]apiMessage, len(history))
	for i, m := range history {
		msgs[i] = apiMessage{Role: string(m.Role), Content: m.Content}
	}
	return msgs
}

// Complete sends the full history and returns the whole reply at once.
func (c *Client) Complete(ctx context.Context, history []chat.Message, params GenParams) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return "", &CompletionError{Model: c.model, Err: fmt.Errorf("API key not configured")}
	}

	reqBody := apiRequest{
		Model:       c.model,
		Messages:    toAPIMessages(history),
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	maxRetries := 3
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return "", &CompletionError{Model: c.model, Err: err}
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", &CompletionError{Model: c.model, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", &CompletionError{Model: c.model, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", &CompletionError{Model: c.model, Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", &CompletionError{Model: c.model, Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if apiResp.Error != nil {
			return "", &CompletionError{Model: c.model, Err: fmt.Errorf("API error: %s", apiResp.Error.Message)}
		}
		if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message == nil {
			return "", &CompletionError{Model: c.model, Err: fmt.Errorf("no completion returned")}
		}

		return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
	}

	return "", &CompletionError{Model: c.model, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// StreamChat sends the full history with streaming enabled and returns a
// channel of incremental content deltas plus an error channel. Both channels
// are closed when the stream ends; at most one error is sent. Deltas arrive
// in stream order and empty deltas are never sent.
func (c *Client) StreamChat(ctx context.Context, history []chat.Message, params GenParams) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		start := time.Now()

		if c.apiKey == "" {
			errorChan <- &CompletionError{Model: c.model, Err: fmt.Errorf("API key not configured")}
			return
		}

		reqBody := apiRequest{
			Model:       c.model,
			Messages:    toAPIMessages(history),
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
			Stream:      true,
			StreamOptions: &apiStreamOptions{
				IncludeUsage: true,
			},
		}

		// Retry only covers request setup and rate limits, before any
		// delta has been emitted.
		maxRetries := 3
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				if err := backoff(ctx, attempt); err != nil {
					errorChan <- &CompletionError{Model: c.model, Err: err}
					return
				}
			}

			jsonData, err := json.Marshal(reqBody)
			if err != nil {
				errorChan <- &CompletionError{Model: c.model, Err: fmt.Errorf("failed to marshal request: %w", err)}
				return
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
			if err != nil {
				errorChan <- &CompletionError{Model: c.model, Err: err}
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
				continue
			}
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				errorChan <- &CompletionError{Model: c.model, Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
				return
			}

			err = c.consumeStream(ctx, resp, contentChan)
			resp.Body.Close()
			if err != nil {
				c.logger.Warn("stream ended with error",
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				errorChan <- err
			} else {
				c.logger.Debug("stream completed",
					zap.Duration("elapsed", time.Since(start)))
			}
			return
		}

		errorChan <- &CompletionError{Model: c.model, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
	}()

	return contentChan, errorChan
}

// consumeStream reads SSE lines from resp and forwards non-empty deltas to
// out until the [DONE] sentinel, an error, or context cancellation.
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, out chan<- string) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return &CompletionError{Model: c.model, Err: fmt.Errorf("API error: %s", chunk.Error.Message)}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case out <- delta:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &CompletionError{Model: c.model, Err: fmt.Errorf("stream error: %w", err)}
	}
	return nil
}
