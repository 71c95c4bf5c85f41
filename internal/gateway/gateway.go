// Package gateway defines the narrow contracts for the hosted inference
// capabilities the core depends on: embedding, generation, transcription and
// captioning.
//
// Each capability is a single-method interface so callers can depend on
// exactly what they use and tests can substitute deterministic doubles.
// All calls are blocking request/response with no internal retry; a failed
// call surfaces immediately to the caller. Retry and backoff policy, if any,
// belongs to the implementation behind the interface.
package gateway

import "context"

// Chat message roles in GenerateRequest.Messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single prior turn passed to the generator.
type ChatMessage struct {
	Role string
	Text string
}

// GenerateRequest carries everything a Generator needs for one completion:
// the system instruction and the ordered conversation, oldest first. The
// last message is the current user input (possibly augmented with retrieved
// context).
type GenerateRequest struct {
	System   string
	Messages []ChatMessage
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Captioner describes an image as text.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mimeType string) (string, error)
}
