package ai

import (
	"context"
	"errors"
	"fmt"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries the caller-facing knobs for one completion call.
// Model is a symbolic name; providers receive the resolved deployment id.
type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
	Stream      bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Fragment is one incremental piece of a streamed completion. FinishReason
// and Usage are only set on the terminal fragment.
type Fragment struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

type Result struct {
	Role         string
	Content      string
	FinishReason string
	Usage        *Usage
}

type Provider interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (*Result, error)
}

// StreamProvider is optional. Providers may implement streaming chat.
// Both channels are closed when the stream ends.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message, params GenerationParams) (<-chan Fragment, <-chan error)
}

// ProviderError is a non-success reply from the completion provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: status %d: %s", e.StatusCode, e.Message)
}

// ErrProviderTimeout is returned when a bounded non-streaming call expires.
var ErrProviderTimeout = errors.New("provider call timed out")
