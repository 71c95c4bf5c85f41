package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is().
var (
	// ErrUnsupportedKind indicates a message kind outside the recognized
	// set. Fatal to that request; there is nothing to retry.
	ErrUnsupportedKind = errors.New("unsupported message kind")

	// ErrEmptyTranscript indicates the transcription gateway returned no
	// text for a voice message.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrMissingMedia indicates a voice or image message without payload
	// bytes.
	ErrMissingMedia = errors.New("message has no media payload")

	// ErrEmptyDocument indicates a document message carrying neither text
	// nor media; there is nothing to ingest.
	ErrEmptyDocument = errors.New("document message has no content")

	// ErrUnsupportedDocumentType indicates document media that is not a
	// PDF. Only PDF uploads can be ingested.
	ErrUnsupportedDocumentType = errors.New("unsupported document media type")
)

// TranscriptionError reports a failed or empty transcription. The voice
// request aborts before retrieval and generation; no turn is recorded.
type TranscriptionError struct {
	SessionID string
	Err       error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribing voice message for session %q: %v", e.SessionID, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// CaptioningError reports a failed image captioning call.
type CaptioningError struct {
	SessionID string
	Err       error
}

func (e *CaptioningError) Error() string {
	return fmt.Sprintf("captioning image for session %q: %v", e.SessionID, e.Err)
}

func (e *CaptioningError) Unwrap() error { return e.Err }

// GenerationError reports a failed generation call. No turn is recorded
// when generation fails.
type GenerationError struct {
	SessionID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating reply for session %q: %v", e.SessionID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
