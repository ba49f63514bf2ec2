package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSE streams tokens to an HTTP response as server-sent events. Each token
// becomes one `data:` event carrying a JSON string; the reply is bracketed by
// `start` and `done` events so clients can frame messages.
type SSE struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSE wraps an HTTP response for event streaming. It returns an error when
// the underlying writer cannot flush incrementally.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSE{w: w, flusher: flusher}, nil
}

func (s *SSE) BeginMessage() error {
	return s.emit("start", "")
}

func (s *SSE) PushToken(token string) error {
	return s.emit("token", token)
}

func (s *SSE) FinalizeMessage() error {
	return s.emit("done", "")
}

func (s *SSE) emit(event, data string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
