package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prodscout/internal/chat"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func sseBody(deltas []string) string {
	body := ""
	for _, d := range deltas {
		chunk, _ := json.Marshal(apiResponse{
			Choices: []apiChoice{{Delta: &apiMessage{Content: d}}},
		})
		body += "data: " + string(chunk) + "\n\n"
	}
	return body + "data: [DONE]\n\n"
}

func collect(t *testing.T, contentChan <-chan string, errorChan <-chan error) ([]string, error) {
	t.Helper()
	var deltas []string
	for d := range contentChan {
		deltas = append(deltas, d)
	}
	return deltas, <-errorChan
}

func TestStreamChat(t *testing.T) {
	t.Run("deltas arrive in stream order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req apiRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Stream)
			assert.Equal(t, "test-model", req.Model)

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte(sseBody([]string{"Top", " 3", " picks:"})))
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		contentChan, errorChan := c.StreamChat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "hi"}}, GenParams{Temperature: 0.3, MaxTokens: 500})
		deltas, err := collect(t, contentChan, errorChan)
		require.NoError(t, err)
		assert.Equal(t, []string{"Top", " 3", " picks:"}, deltas)
	})

	t.Run("empty deltas are dropped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sseBody([]string{"", "a", "", "b"})))
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		contentChan, errorChan := c.StreamChat(context.Background(), nil, GenParams{})
		deltas, err := collect(t, contentChan, errorChan)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, deltas)
	})

	t.Run("zero tokens is a clean empty stream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		contentChan, errorChan := c.StreamChat(context.Background(), nil, GenParams{})
		deltas, err := collect(t, contentChan, errorChan)
		require.NoError(t, err)
		assert.Empty(t, deltas)
	})

	t.Run("non-200 surfaces a CompletionError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		contentChan, errorChan := c.StreamChat(context.Background(), nil, GenParams{})
		_, err := collect(t, contentChan, errorChan)

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Error(), "status 400")
	})

	t.Run("in-stream API error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chunk, _ := json.Marshal(apiResponse{Error: &apiError{Message: "overloaded"}})
			_, _ = w.Write([]byte("data: " + string(chunk) + "\n\n"))
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		contentChan, errorChan := c.StreamChat(context.Background(), nil, GenParams{})
		_, err := collect(t, contentChan, errorChan)

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Error(), "overloaded")
	})

	t.Run("cancellation cuts the retry backoff short", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		c := testClient(srv.URL)
		start := time.Now()
		contentChan, errorChan := c.StreamChat(ctx, nil, GenParams{})
		_, err := collect(t, contentChan, errorChan)
		elapsed := time.Since(start)

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("missing API key fails before any request", func(t *testing.T) {
		c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Model: "m", Timeout: time.Second}, zap.NewNop())
		contentChan, errorChan := c.StreamChat(context.Background(), nil, GenParams{})
		_, err := collect(t, contentChan, errorChan)

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
	})
}

func TestComplete(t *testing.T) {
	t.Run("returns the whole reply", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req apiRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.False(t, req.Stream)

			resp := apiResponse{Choices: []apiChoice{{Message: &apiMessage{Role: "assistant", Content: "  graded  "}}}}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		got, err := c.Complete(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "grade this"}}, GenParams{Temperature: 0.2})
		require.NoError(t, err)
		assert.Equal(t, "graded", got)
	})

	t.Run("cancellation cuts the retry backoff short", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		c := testClient(srv.URL)
		start := time.Now()
		_, err := c.Complete(ctx, nil, GenParams{})
		elapsed := time.Since(start)

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		// The first retry delay alone is one second; giving up must not wait it out.
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(apiResponse{})
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		_, err := c.Complete(context.Background(), nil, GenParams{})

		var cerr *CompletionError
		require.ErrorAs(t, err, &cerr)
	})
}
