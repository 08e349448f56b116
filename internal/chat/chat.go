// Package chat provides chat-model completion via an external provider API.
package chat

import "context"

// CompletionRequest is a single chat completion call: a system prompt, a
// user prompt, and sampling options.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	// JSONResponse asks the provider to constrain output to a JSON object.
	JSONResponse bool
}

// Completer produces a free-form text completion for a structured prompt.
type Completer interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
	Close() error
}
