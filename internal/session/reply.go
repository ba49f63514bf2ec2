package session

import (
	"context"
	"strings"

	"prodscout/internal/chat"
	"prodscout/internal/llm"
	"prodscout/internal/transport"
)

// streamReply invokes the completion capability with the full history,
// forwards every non-empty delta to the transport in arrival order, and
// returns the accumulated reply text. A stream that yields zero tokens
// produces an empty reply, which is valid. A completion failure propagates
// unfinalized; the caller decides how to surface it.
func streamReply(ctx context.Context, completer Completer, history []chat.Message, params llm.GenParams, t transport.Transport) (string, error) {
	// A transport failure abandons the stream mid-way; cancelling stops the
	// producer instead of leaving it pulling deltas until its deadline.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.BeginMessage(); err != nil {
		return "", err
	}

	contentChan, errorChan := completer.StreamChat(ctx, history, params)

	var sb strings.Builder
	for token := range contentChan {
		if token == "" {
			continue
		}
		if err := t.PushToken(token); err != nil {
			return "", err
		}
		sb.WriteString(token)
	}

	// The producer closes both channels when it finishes; a buffered error,
	// if any, outranks whatever partial text accumulated.
	if err := <-errorChan; err != nil {
		return "", err
	}

	if err := t.FinalizeMessage(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
