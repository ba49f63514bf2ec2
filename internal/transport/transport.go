// Package transport delivers assistant output to a user surface. The core
// calls BeginMessage, then PushToken for each delta, then FinalizeMessage,
// exactly once per turn.
package transport

// Transport receives one assistant reply as an ordered stream of tokens.
type Transport interface {
	BeginMessage() error
	PushToken(token string) error
	FinalizeMessage() error
}
