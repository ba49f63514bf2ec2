package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	cli := NewCLI(&buf)

	require.NoError(t, cli.BeginMessage())
	require.NoError(t, cli.PushToken("The Bambino "))
	require.NoError(t, cli.PushToken("Plus."))
	require.NoError(t, cli.FinalizeMessage())

	assert.Equal(t, "prodscout> The Bambino Plus.\n", buf.String())
}

func TestSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSE(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	require.NoError(t, sse.BeginMessage())
	require.NoError(t, sse.PushToken("hello"))
	require.NoError(t, sse.PushToken(`with "quotes"
and newline`))
	require.NoError(t, sse.FinalizeMessage())

	assert.Equal(t, "event: start\ndata: \"\"\n\n"+
		"event: token\ndata: \"hello\"\n\n"+
		"event: token\ndata: \"with \\\"quotes\\\"\\nand newline\"\n\n"+
		"event: done\ndata: \"\"\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

type plainWriter struct{}

func (plainWriter) Header() http.Header         { return http.Header{} }
func (plainWriter) Write(p []byte) (int, error) { return len(p), nil }
func (plainWriter) WriteHeader(int)             {}

func TestSSERequiresFlusher(t *testing.T) {
	_, err := NewSSE(plainWriter{})
	require.Error(t, err)
}
