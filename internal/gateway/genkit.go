package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// Prompts for the multimodal paths. Transcription and captioning run through
// the same multimodal chat model; the prompt constrains the output to the
// bare transcript or description.
const (
	transcribePrompt = "Transcribe this audio recording verbatim. " +
		"Return only the spoken words, with no commentary."

	captionPrompt = "Describe this image in detail: the scene, any visible " +
		"text, and notable elements. Return only the description."
)

// Config configures the Genkit-backed gateway.
type Config struct {
	ChatModel     string // e.g. "gemini-2.5-flash"
	EmbedderModel string // e.g. "gemini-embedding-001"
}

// Genkit implements Embedder, Generator, Transcriber and Captioner on top of
// Firebase Genkit with the Google GenAI plugin. The GEMINI_API_KEY
// environment variable must be set; credential management is outside the
// core.
type Genkit struct {
	g         *genkit.Genkit
	embedder  ai.Embedder
	chatModel string
	logger    *slog.Logger
}

// Statically assert that Genkit satisfies every gateway contract.
var (
	_ Embedder    = (*Genkit)(nil)
	_ Generator   = (*Genkit)(nil)
	_ Transcriber = (*Genkit)(nil)
	_ Captioner   = (*Genkit)(nil)
)

// NewGenkit initializes the Genkit runtime with the Google GenAI plugin and
// resolves the configured embedder.
func NewGenkit(ctx context.Context, cfg Config, logger *slog.Logger) (*Genkit, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder model %q not available", cfg.EmbedderModel)
	}

	return &Genkit{
		g:         g,
		embedder:  embedder,
		chatModel: "googleai/" + cfg.ChatModel,
		logger:    logger,
	}, nil
}

// Embed generates an embedding vector for the given text.
func (c *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned empty embedding")
	}
	return resp.Embeddings[0].Embedding, nil
}

// Generate produces a chat completion for the given conversation.
func (c *Genkit) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := make([]*ai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Text)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Text)))
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(c.chatModel),
		ai.WithMessages(messages...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	c.logger.Debug("completion generated", "messages", len(messages))
	return resp.Text(), nil
}

// Transcribe converts audio bytes to text via a multimodal generate call.
func (c *Genkit) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	text, err := c.generateWithMedia(ctx, transcribePrompt, audio, mimeType)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return text, nil
}

// Caption describes an image via a multimodal generate call.
func (c *Genkit) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	text, err := c.generateWithMedia(ctx, captionPrompt, image, mimeType)
	if err != nil {
		return "", fmt.Errorf("captioning image: %w", err)
	}
	return text, nil
}

// generateWithMedia runs one generate call with a prompt and an inline media
// part encoded as a base64 data URI.
func (c *Genkit) generateWithMedia(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.chatModel),
		ai.WithMessages(ai.NewUserMessage(
			ai.NewTextPart(prompt),
			ai.NewMediaPart(mimeType, dataURI),
		)),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
