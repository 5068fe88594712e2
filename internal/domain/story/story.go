package story

import (
	"strings"
	"time"
)

// DefaultTitle is used whenever no title can be extracted from generated text.
const DefaultTitle = "Magic Story"

// Story is a generated children's story: a title and its paragraphs in
// narrative order.
type Story struct {
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
}

// Valid reports whether the story has a title and at least one non-blank paragraph.
func (s Story) Valid() bool {
	if strings.TrimSpace(s.Title) == "" || len(s.Paragraphs) == 0 {
		return false
	}
	for _, p := range s.Paragraphs {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}

// Text joins title and paragraphs the way they are read aloud.
func (s Story) Text() string {
	parts := make([]string, 0, len(s.Paragraphs)+1)
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	parts = append(parts, s.Paragraphs...)
	return strings.Join(parts, "\n\n")
}

// Illustration is an image generated for one paragraph, or for the whole
// story when ParagraphIndex is nil.
type Illustration struct {
	ParagraphIndex *int   `json:"paragraph_index,omitempty"`
	URL            string `json:"url,omitempty"`
	Data           []byte `json:"data,omitempty"`
	MIMEType       string `json:"mime_type,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
}

// Cover reports whether the illustration belongs to the story as a whole.
func (i Illustration) Cover() bool {
	return i.ParagraphIndex == nil
}

// AudioFormat names the encoding of narration audio.
type AudioFormat string

const (
	AudioMP3 AudioFormat = "mp3"
	AudioWAV AudioFormat = "wav"
)

// NarrationSegment is one independently playable piece of narration audio.
// Exactly one of Audio or Path is expected to be set.
type NarrationSegment struct {
	Index        int           `json:"index"`
	Audio        []byte        `json:"-"`
	Path         string        `json:"path,omitempty"`
	Format       AudioFormat   `json:"format"`
	Text         string        `json:"text,omitempty"`
	DurationHint time.Duration `json:"duration_hint,omitempty"`
}

// EstimateDuration gives a rough read-aloud duration for text at the given
// speed multiplier, assuming 150 words per minute.
func EstimateDuration(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	words := len(strings.Fields(text))
	return time.Duration(float64(words) / 150.0 / speed * float64(time.Minute))
}

// IntPtr returns a pointer to i; handy for paragraph indexes.
func IntPtr(i int) *int {
	return &i
}
