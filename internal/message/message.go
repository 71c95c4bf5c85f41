// Package message defines the inbound message data model shared by the
// boundary layer and the orchestrator.
//
// A Message is produced by request-handling code (webhook decoding, REST
// endpoints) and consumed by the orchestrator. It is immutable once created:
// per-kind extraction (transcription, captioning) never mutates the Message,
// it produces a NormalizedInput instead.
package message

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the modality of an inbound message.
// The set is closed: the orchestrator matches it exhaustively.
type Kind string

const (
	KindText     Kind = "text"
	KindVoice    Kind = "voice"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// ErrUnknownKind indicates a Kind outside the recognized set.
var ErrUnknownKind = errors.New("unknown message kind")

// Valid reports whether k is one of the four recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindImage, KindDocument:
		return true
	}
	return false
}

// Message is a single inbound user message as delivered by the boundary
// layer. Media carries the raw bytes for voice/image/document kinds;
// Text carries the payload text for text kind and the optional caption
// accompanying an image.
type Message struct {
	ID         string
	SessionID  string
	Kind       Kind
	Text       string
	Media      []byte
	MediaType  string // MIME type of Media, e.g. "audio/ogg", "image/jpeg"
	DocumentID string // document identifier for Kind == KindDocument
	Metadata   map[string]string
	ReceivedAt time.Time
}

// New creates a Message with a generated ID and the current receive time.
func New(sessionID string, kind Kind) Message {
	return Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Kind:       kind,
		ReceivedAt: time.Now(),
	}
}

// Validate checks the structural invariants a Message must satisfy before
// the orchestrator accepts it.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return ErrUnknownKind
	}
	if m.SessionID == "" {
		return errors.New("message missing session ID")
	}
	return nil
}

// NormalizedInput is the text form of a Message after per-kind extraction.
// For voice it carries the transcript, for image the caption joined with any
// accompanying user text.
type NormalizedInput struct {
	SessionID   string
	Text        string
	SourceKind  Kind
	Attachments []string // ordered attachment URIs, if the platform supplied any
}
