// Package testutil provides shared test doubles for the gateway interfaces
// and a PostgreSQL test container for vector store integration tests.
package testutil

import "context"

// EmbedderFunc adapts a function to the gateway.Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// TranscriberFunc adapts a function to the gateway.Transcriber interface.
type TranscriberFunc func(ctx context.Context, audio []byte, mimeType string) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f(ctx, audio, mimeType)
}

// CaptionerFunc adapts a function to the gateway.Captioner interface.
type CaptionerFunc func(ctx context.Context, image []byte, mimeType string) (string, error)

func (f CaptionerFunc) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	return f(ctx, image, mimeType)
}
