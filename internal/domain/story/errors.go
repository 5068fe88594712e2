package story

import (
	"errors"
	"fmt"
)

// ErrEmptyOutput is returned when the text generator answers with blank text.
var ErrEmptyOutput = errors.New("text generator returned an empty story")

// InvalidParameterError reports a bad GenerationRequest or prompt argument.
// No external call is made when it is returned.
type InvalidParameterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// GenerationError wraps a failure of the primary text generation call.
// It is fatal to the current session.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("story generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StatusCoder is implemented by collaborator errors carrying an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// UserMessage is the short text shown to the reader.
func (e *GenerationError) UserMessage() string {
	if errors.Is(e.Err, ErrEmptyOutput) {
		return "The story generator returned an empty story"
	}
	var sc StatusCoder
	if errors.As(e.Err, &sc) {
		switch sc.StatusCode() {
		case 401, 403:
			return "Invalid API key"
		case 429:
			return "Rate limit exceeded, please try again in a moment"
		}
	}
	return "Failed to generate story"
}

// Enrichment kinds.
const (
	KindIllustration = "illustration"
	KindNarration    = "narration"
)

// EnrichError reports a failed illustration or narration request. It never
// invalidates the story text.
type EnrichError struct {
	Kind           string
	ParagraphIndex *int
	Err            error
}

func (e *EnrichError) Error() string {
	if e.ParagraphIndex != nil {
		return fmt.Sprintf("%s for paragraph %d failed: %v", e.Kind, *e.ParagraphIndex, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *EnrichError) Unwrap() error {
	return e.Err
}

// PlaybackError reports an audio fetch or playback failure.
type PlaybackError struct {
	Segment int
	Err     error
}

func (e *PlaybackError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("narration unavailable: %v", e.Err)
	}
	return fmt.Sprintf("playback of segment %d failed: %v", e.Segment, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}
