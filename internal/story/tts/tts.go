// internal/story/tts/tts.go
package tts

import (
	"context"
	"storynest/internal/domain/story"
)

type Config struct {
	Type     string
	Speed    float64
	Volume   float64
	Voice    string
	CacheDir string
	// OpenAI is used by the openai engine and by auto selection when set.
	OpenAI SpeechClient
}

// Options tune one synthesis call. Zero values fall back to the engine config.
type Options struct {
	Voice    string
	Language story.Language
	Speed    float64
	Volume   float64
}

// Clip is encoded audio produced by an engine. Either Audio holds the bytes
// or Path points at a file on disk.
type Clip struct {
	Audio  []byte
	Path   string
	Format story.AudioFormat
	Text   string
}

// Synthesizer turns text into one or more ordered audio clips.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error)
}

// VoiceLister is implemented by engines that can enumerate their voices.
type VoiceLister interface {
	GetAvailableVoices(ctx context.Context) ([]string, error)
}

// CacheableEngine extends Synthesizer with cache management capabilities
type CacheableEngine interface {
	Synthesizer
	GetCacheStats() (map[string]interface{}, error)
	ClearCache() error
}

// SpeechClient is the subset of an OpenAI-compatible client used for speech.
type SpeechClient interface {
	Speech(ctx context.Context, text, voice, format string, speed float64) ([]byte, error)
}

func (c Config) merge(opts Options) Options {
	if opts.Voice == "" && c.Voice != "default" {
		opts.Voice = c.Voice
	}
	if opts.Voice == "default" {
		opts.Voice = ""
	}
	if opts.Speed <= 0 {
		opts.Speed = c.Speed
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.Volume <= 0 {
		opts.Volume = c.Volume
	}
	if opts.Volume <= 0 {
		opts.Volume = 1.0
	}
	if opts.Language.IsZero() {
		opts.Language = story.English
	}
	return opts
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
