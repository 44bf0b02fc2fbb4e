package gateway

import "context"

// LLMGateway is the single-turn chat-completion port Selector Strategy A
// uses to propose segment ranges. Implementations are responsible only for
// the request/response exchange; prompt construction and JSON-array
// post-validation live in the domain Selector.
type LLMGateway interface {
	// Available reports whether a credential is configured at all, so the
	// Selector can skip Strategy A without attempting a network call.
	Available() bool
	// Complete sends prompt as a single user turn and returns the raw
	// response text.
	Complete(ctx context.Context, prompt string) (string, error)
}
