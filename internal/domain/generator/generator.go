package generator

import (
	"context"
	"fmt"
	"storynest/internal/domain/story"
)

// Params tunes a single text generation call.
type Params struct {
	System      string
	Temperature float64
	MaxTokens   int
	// JSON asks providers that support it to answer with a JSON object.
	JSON bool
}

// TextGenerator produces the raw story text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, params Params) (string, error)
}

// ImageGenerator produces one illustration for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, size string) (*story.Illustration, error)
}

// StatusError is returned when a generation endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// StatusCode implements story.StatusCoder.
func (e *StatusError) StatusCode() int {
	return e.Code
}
