// Package orchestrator is the entry point for a single inbound message. It
// classifies the message kind, invokes the matching gateways, optionally
// consults the RAG engine, merges retrieved context with conversation
// memory, calls the generation gateway and records the resulting turns.
//
// Ordering guarantees: transcription or captioning always completes before
// retrieval; retrieval always completes before generation; the memory append
// happens exactly once, after generation succeeds, and never on a failure
// path that aborts earlier.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/multisense/agent/internal/gateway"
	"github.com/multisense/agent/internal/memory"
	"github.com/multisense/agent/internal/message"
	"github.com/multisense/agent/internal/rag"
)

// DefaultSystemPrompt frames the assistant for the generation gateway.
// Boundary layers may override it via Config.
const DefaultSystemPrompt = `You are a multi-modal assistant. You answer questions from your knowledge
and from document context supplied to you, you respond to transcribed voice
messages and described images, and you keep conversation context across
messages.

Guidelines:
- Be helpful, accurate and concise.
- When answering from document context, stay grounded in it; if the context
  is not relevant, answer from general knowledge.
- If you do not know something, say so.`

// augmentedPromptFormat wraps retrieved context around the user's question.
const augmentedPromptFormat = `Use the following context to answer the user's question. If the context is
not relevant, answer from your general knowledge.

--- Retrieved Context ---
%s
--- End Context ---

User Question: %s`

// Config tunes prompt assembly.
type Config struct {
	SystemPrompt    string // empty: DefaultSystemPrompt
	DefaultTopK     int    // retrieval k when the caller passes none; must be positive
	MaxContextRunes int    // bound on the retrieved context block; 0 = unbounded
}

// Options select per-request behavior.
type Options struct {
	UseRAG bool
	TopK   int // 0: Config.DefaultTopK
}

// Result is the structured outcome of one handled message.
type Result struct {
	SessionID      string        `json:"session_id"`
	Kind           message.Kind  `json:"kind"`
	Reply          string        `json:"reply,omitempty"`
	Sources        []string      `json:"sources"`
	Transcript     string        `json:"transcript,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`

	// Ingestion is set only for document messages, which never reach
	// generation.
	Ingestion *rag.IngestionReport `json:"ingestion,omitempty"`
}

// Orchestrator dispatches inbound messages. All collaborators are injected;
// it holds no mutable state of its own and is safe for concurrent use.
type Orchestrator struct {
	transcriber gateway.Transcriber
	captioner   gateway.Captioner
	generator   gateway.Generator
	engine      *rag.Engine
	memory      *memory.Service
	cfg         Config
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(
	transcriber gateway.Transcriber,
	captioner gateway.Captioner,
	generator gateway.Generator,
	engine *rag.Engine,
	mem *memory.Service,
	cfg Config,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if cfg.DefaultTopK <= 0 {
		return nil, fmt.Errorf("default top-k must be positive, got %d", cfg.DefaultTopK)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transcriber: transcriber,
		captioner:   captioner,
		generator:   generator,
		engine:      engine,
		memory:      mem,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Handle processes one inbound message and returns the structured result.
func (o *Orchestrator) Handle(ctx context.Context, msg message.Message, opts Options) (*Result, error) {
	start := time.Now()

	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, msg.Kind)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if msg.Kind == message.KindDocument {
		return o.handleDocument(ctx, msg, start)
	}

	norm, transcript, err := o.normalize(ctx, msg)
	if err != nil {
		return nil, err
	}

	reply, sources, err := o.generate(ctx, norm, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID:      msg.SessionID,
		Kind:           msg.Kind,
		Reply:          reply,
		Sources:        sources,
		Transcript:     transcript,
		ProcessingTime: time.Since(start),
	}

	o.logger.Info("message handled",
		"session_id", msg.SessionID,
		"kind", msg.Kind,
		"sources", len(sources),
		"elapsed", result.ProcessingTime,
	)
	return result, nil
}

// handleDocument runs the ingestion path. No generation call occurs and no
// turn is recorded. Media bytes are treated as a PDF upload and their text
// extracted; without media, the message text is ingested directly.
func (o *Orchestrator) handleDocument(ctx context.Context, msg message.Message, start time.Time) (*Result, error) {
	documentID := msg.DocumentID
	if documentID == "" {
		documentID = msg.ID
	}

	var (
		report *rag.IngestionReport
		err    error
	)
	switch {
	case len(msg.Media) > 0:
		if !isPDFMediaType(msg.MediaType) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedDocumentType, msg.MediaType)
		}
		report, err = o.engine.IngestPDF(ctx, documentID, msg.Media, msg.Metadata)
	case strings.TrimSpace(msg.Text) != "":
		report, err = o.engine.Ingest(ctx, documentID, msg.Text, msg.Metadata)
	default:
		return nil, fmt.Errorf("%w: session %q", ErrEmptyDocument, msg.SessionID)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		SessionID:      msg.SessionID,
		Kind:           message.KindDocument,
		Sources:        []string{},
		Ingestion:      report,
		ProcessingTime: time.Since(start),
	}, nil
}

// isPDFMediaType reports whether a document media type is ingestible. An
// unset type is given the benefit of the doubt; the extractor rejects
// non-PDF bytes anyway.
func isPDFMediaType(mediaType string) bool {
	return mediaType == "" || strings.Contains(strings.ToLower(mediaType), "pdf")
}

// normalize extracts the text form of the message. The second return value
// is the transcript for voice messages, empty otherwise.
func (o *Orchestrator) normalize(ctx context.Context, msg message.Message) (message.NormalizedInput, string, error) {
	norm := message.NormalizedInput{SessionID: msg.SessionID, SourceKind: msg.Kind}

	switch msg.Kind {
	case message.KindText:
		norm.Text = msg.Text
		return norm, "", nil

	case message.KindVoice:
		if len(msg.Media) == 0 {
			return norm, "", &TranscriptionError{SessionID: msg.SessionID, Err: ErrMissingMedia}
		}
		transcript, err := o.transcriber.Transcribe(ctx, msg.Media, msg.MediaType)
		if err != nil {
			return norm, "", &TranscriptionError{SessionID: msg.SessionID, Err: err}
		}
		if strings.TrimSpace(transcript) == "" {
			return norm, "", &TranscriptionError{SessionID: msg.SessionID, Err: ErrEmptyTranscript}
		}
		norm.Text = transcript
		return norm, transcript, nil

	case message.KindImage:
		if len(msg.Media) == 0 {
			return norm, "", &CaptioningError{SessionID: msg.SessionID, Err: ErrMissingMedia}
		}
		caption, err := o.captioner.Caption(ctx, msg.Media, msg.MediaType)
		if err != nil {
			return norm, "", &CaptioningError{SessionID: msg.SessionID, Err: err}
		}
		norm.Text = "Image description: " + caption
		if msg.Text != "" {
			norm.Text += "\n\n" + msg.Text
		}
		return norm, "", nil
	}

	// Unreachable: Handle validated the kind and dispatched document.
	return norm, "", fmt.Errorf("%w: %q", ErrUnsupportedKind, msg.Kind)
}

// generate optionally retrieves context, assembles the bounded prompt from
// prior turns plus the current input, calls the generation gateway and
// records both turns.
func (o *Orchestrator) generate(ctx context.Context, norm message.NormalizedInput, opts Options) (string, []string, error) {
	var sources []string
	prompt := norm.Text

	if opts.UseRAG {
		k := opts.TopK
		if k <= 0 {
			k = o.cfg.DefaultTopK
		}
		results, err := o.engine.Retrieve(ctx, norm.Text, k)
		if err != nil {
			return "", nil, err
		}
		sources = distinctSources(results)
		if block := rag.ContextBlock(results, o.cfg.MaxContextRunes); block != "" {
			prompt = fmt.Sprintf(augmentedPromptFormat, block, norm.Text)
		}
	}

	history := o.memory.History(norm.SessionID)
	messages := make([]gateway.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := gateway.RoleUser
		if turn.Role == memory.RoleAssistant {
			role = gateway.RoleAssistant
		}
		messages = append(messages, gateway.ChatMessage{Role: role, Text: turn.Text})
	}
	messages = append(messages, gateway.ChatMessage{Role: gateway.RoleUser, Text: prompt})

	reply, err := o.generator.Generate(ctx, gateway.GenerateRequest{
		System:   o.cfg.SystemPrompt,
		Messages: messages,
	})
	if err != nil {
		return "", nil, &GenerationError{SessionID: norm.SessionID, Err: err}
	}

	// Record exactly one user turn and one assistant turn, only now that
	// generation has succeeded.
	now := time.Now()
	o.memory.Append(norm.SessionID, memory.Turn{
		SessionID: norm.SessionID,
		Role:      memory.RoleUser,
		Text:      norm.Text,
		Timestamp: now,
	})
	o.memory.Append(norm.SessionID, memory.Turn{
		SessionID: norm.SessionID,
		Role:      memory.RoleAssistant,
		Text:      reply,
		Timestamp: now,
		Sources:   sources,
	})

	if sources == nil {
		sources = []string{}
	}
	return reply, sources, nil
}

// distinctSources collects document IDs in rank order, deduplicated.
func distinctSources(results []rag.Result) []string {
	if len(results) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		if !seen[r.SourceDocumentID] {
			seen[r.SourceDocumentID] = true
			sources = append(sources, r.SourceDocumentID)
		}
	}
	return sources
}
