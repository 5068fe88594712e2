// Package parser turns raw generated text into a Story. It never fails: when
// no structure can be found it degrades to a placeholder title and the raw
// text as the only paragraph.
package parser

import (
	"encoding/json"
	"storynest/internal/domain/story"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind tells which strategy produced a Result.
type Kind int

const (
	// KindJSON means a JSON object with a title and paragraphs was found.
	KindJSON Kind = iota
	// KindPlainText means the first line was taken as the title.
	KindPlainText
	// KindRaw means no structure was found and the raw text became the
	// only paragraph.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindPlainText:
		return "plain"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// Result is the outcome of Analyze.
type Result struct {
	Kind  Kind
	Story story.Story
}

// Parse parses raw with English placeholders.
func Parse(raw string) story.Story {
	return Analyze(raw, story.English).Story
}

// ParseFor parses raw with placeholders in lang.
func ParseFor(raw string, lang story.Language) story.Story {
	return Analyze(raw, lang).Story
}

// Analyze runs the fallback ladder: JSON object, then title-first plain
// text, then the raw blob.
func Analyze(raw string, lang story.Language) Result {
	if lang.IsZero() {
		lang = story.English
	}
	defaultTitle := lang.DefaultTitle()

	m, ok := fromJSON(raw)
	if ok {
		return Result{Kind: KindJSON, Story: story.Story{Title: orDefault(m.title, defaultTitle), Paragraphs: m.paragraphs}}
	}
	if m.titled {
		// A titled object without a body: keep its title, not the JSON text.
		body := strings.TrimSpace(raw)
		if body == m.object {
			body = lang.EmptyStoryText()
		}
		logrus.WithField("title", m.title).Debug("Story JSON has no body")
		return Result{Kind: KindRaw, Story: story.Story{Title: orDefault(m.title, defaultTitle), Paragraphs: []string{body}}}
	}

	title, paragraphs := fromPlainText(raw)
	if len(paragraphs) > 0 {
		return Result{Kind: KindPlainText, Story: story.Story{Title: orDefault(title, defaultTitle), Paragraphs: paragraphs}}
	}

	body := strings.TrimSpace(raw)
	if body == "" {
		body = lang.EmptyStoryText()
	}
	logrus.WithField("bytes", len(raw)).Debug("No story structure found, using raw text")
	return Result{Kind: KindRaw, Story: story.Story{Title: orDefault(title, defaultTitle), Paragraphs: []string{body}}}
}

func orDefault(title, def string) string {
	if title == "" {
		return def
	}
	return title
}

type jsonMatch struct {
	title      string
	paragraphs []string
	object     string
	// titled is set for an object with a "title" key, body or not.
	titled bool
}

// fromJSON looks for JSON objects in raw, in order of their opening brace, and
// reports the first one shaped like {title, content|paragraphs}. Without one,
// the first titled object is returned with ok false.
func fromJSON(raw string) (jsonMatch, bool) {
	var first jsonMatch
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if end := matchingBrace(raw, start); end >= 0 {
			m := decodeStory(raw[start : end+1])
			if len(m.paragraphs) > 0 {
				return m, true
			}
			if m.titled && !first.titled {
				first = m
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return first, false
}

// matchingBrace returns the index of the brace closing the one at start,
// skipping braces inside JSON strings, or -1.
func matchingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var bodyKeys = []string{"paragraphs", "content", "story", "body"}

func decodeStory(object string) jsonMatch {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		return jsonMatch{}
	}
	lower := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(k)] = v
	}

	m := jsonMatch{object: object}
	if v, ok := lower["title"]; ok {
		if err := json.Unmarshal(v, &m.title); err != nil {
			return jsonMatch{}
		}
		m.title = cleanTitle(m.title)
		m.titled = true
	}

	for _, key := range bodyKeys {
		if v, ok := lower[key]; ok {
			if m.paragraphs = decodeBody(v); len(m.paragraphs) > 0 {
				return m
			}
		}
	}
	return m
}

func decodeBody(v json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return cleanParagraphs(list)
	}
	var text string
	if err := json.Unmarshal(v, &text); err == nil {
		return splitBody(strings.Split(normalizeNewlines(text), "\n"))
	}
	return nil
}

// fromPlainText takes the first non-empty line as the title and the rest as
// the body.
func fromPlainText(raw string) (string, []string) {
	lines := strings.Split(normalizeNewlines(raw), "\n")

	titleAt := -1
	for i, line := range lines {
		if isBlank(line) {
			continue
		}
		titleAt = i
		break
	}
	if titleAt < 0 {
		return "", nil
	}
	return cleanTitle(lines[titleAt]), splitBody(lines[titleAt+1:])
}

// splitBody splits lines into blank-line separated paragraphs. Without at
// least two such groups every line is its own paragraph.
func splitBody(lines []string) []string {
	var groups [][]string
	var current []string
	for _, line := range lines {
		if isBlank(line) {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
			}
			continue
		}
		current = append(current, strings.TrimSpace(line))
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	switch len(groups) {
	case 0:
		return nil
	case 1:
		return cleanParagraphs(groups[0])
	}
	paragraphs := make([]string, 0, len(groups))
	for _, g := range groups {
		paragraphs = append(paragraphs, strings.Join(g, "\n"))
	}
	return cleanParagraphs(paragraphs)
}

// isBlank treats markdown code fences like empty lines.
func isBlank(line string) bool {
	t := strings.TrimSpace(line)
	return t == "" || strings.HasPrefix(t, "```")
}

func cleanParagraphs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var titlePrefixes = []string{"title:", "judul:", "titel:"}

// cleanTitle strips markdown emphasis and heading markers, a "Title:" label
// and surrounding quotes.
func cleanTitle(line string) string {
	t := strings.ReplaceAll(line, "*", "")
	t = strings.TrimSpace(t)
	t = strings.TrimLeft(t, "#")
	t = strings.TrimSpace(t)
	for _, p := range titlePrefixes {
		if len(t) >= len(p) && strings.EqualFold(t[:len(p)], p) {
			t = t[len(p):]
			break
		}
	}
	t = strings.Trim(t, " \t_\"“”")
	return strings.TrimSpace(t)
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
