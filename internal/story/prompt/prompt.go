// Package prompt turns story requests into natural-language instructions for
// the text and image generators. Everything here is pure.
package prompt

import (
	"fmt"
	"storynest/internal/domain/story"
	"strconv"
	"strings"
)

// SystemPrompt is sent as the system message of every story request.
const SystemPrompt = "You are a friendly bedtime story generator for kids."

// Strategy selects how the generator is asked to separate title and body.
type Strategy int

const (
	// Unstructured asks for the title on the first line and blank-line
	// separated paragraphs.
	Unstructured Strategy = iota
	// Structured asks for a single JSON object with title and paragraphs.
	Structured
)

func (s Strategy) String() string {
	switch s {
	case Unstructured:
		return "unstructured"
	case Structured:
		return "structured"
	}
	return "strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unstructured", "text", "plain":
		return Unstructured, nil
	case "structured", "json":
		return Structured, nil
	}
	return Unstructured, &story.InvalidParameterError{Field: "strategy", Value: s, Reason: "expected unstructured or structured"}
}

// Builder builds prompts with a fixed output strategy.
type Builder struct {
	Strategy Strategy
}

// BuildStoryPrompt builds an unstructured story prompt.
func BuildStoryPrompt(req story.GenerationRequest) (string, error) {
	return Builder{}.Story(req)
}

// BuildIllustrationPrompt builds an illustration prompt for a paragraph, or
// for the whole story when paragraphIndex is nil.
func BuildIllustrationPrompt(s story.Story, paragraphIndex *int) (string, error) {
	return Builder{}.Illustration(s, paragraphIndex)
}

// Story builds the story request for req.
func (b Builder) Story(req story.GenerationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s children's bedtime story in %s for ages 4-8.\n", req.Length, req.Language)
	if req.RandomCategory() {
		fmt.Fprintf(&sb, "Topic: %s (choose a surprising, child-friendly theme yourself)\n", req.Category)
	} else {
		fmt.Fprintf(&sb, "Topic: %s\n", req.Category)
	}
	fmt.Fprintf(&sb, "Length: %s, about %s when read aloud, in %s paragraphs.\n",
		req.Length, req.Length.Minutes(), req.Length.Paragraphs())
	fmt.Fprintf(&sb, "Language: %s. Write the title and every paragraph in %s.\n", req.Language, req.Language)
	if req.Moral != "" {
		fmt.Fprintf(&sb, "Moral: the story should gently teach that %q.\n", req.Moral)
	}
	sb.WriteString("Keep the language simple, warm and positive, with a gentle conflict and a happy resolution.\n")

	switch b.Strategy {
	case Structured:
		sb.WriteString(`Respond with a single JSON object and nothing else, shaped like {"title": "...", "paragraphs": ["...", "..."]}. ` +
			"Each paragraph is one array element. Do not use markdown.")
	case Unstructured:
		sb.WriteString("Put the title alone on the first line, without quotes or a \"Title:\" label. " +
			"Then write the story paragraphs, separated by a blank line.")
	default:
		return "", &story.InvalidParameterError{Field: "strategy", Value: b.Strategy.String(), Reason: "unknown output strategy"}
	}
	return sb.String(), nil
}

const illustrationStyle = "Children's book illustration, pastel palette, soft outlines, whimsical, no text."

// Illustration builds an image prompt for one paragraph of s. A nil index
// asks for a single scene that represents the whole story.
func (b Builder) Illustration(s story.Story, paragraphIndex *int) (string, error) {
	if len(s.Paragraphs) == 0 {
		return "", &story.InvalidParameterError{Field: "story", Value: s.Title, Reason: "story has no paragraphs"}
	}

	if paragraphIndex == nil {
		return fmt.Sprintf("%s Focus on one main scene that strongly represents the story %q: %s",
			illustrationStyle, s.Title, s.Paragraphs[0]), nil
	}

	i := *paragraphIndex
	if i < 0 || i >= len(s.Paragraphs) {
		return "", &story.InvalidParameterError{
			Field:  "paragraphIndex",
			Value:  strconv.Itoa(i),
			Reason: fmt.Sprintf("story has %d paragraphs", len(s.Paragraphs)),
		}
	}
	return fmt.Sprintf("%s Illustration for the story %q, showing this scene: %s",
		illustrationStyle, s.Title, s.Paragraphs[i]), nil
}

// Speech returns the text narrated for the whole story.
func (b Builder) Speech(s story.Story) string {
	return s.Text()
}
