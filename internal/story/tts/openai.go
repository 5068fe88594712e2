package tts

import (
	"context"
	"fmt"
	"storynest/internal/domain/story"
	"strings"
)

// OpenAI's speech endpoint accepts up to 4096 characters per request.
const openAIChunkLimit = 4000

var openAIVoices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// OpenAIEngine synthesizes speech through an OpenAI-compatible /v1/audio/speech endpoint.
type OpenAIEngine struct {
	client SpeechClient
	config Config
}

func newOpenAIEngine(config Config) *OpenAIEngine {
	return &OpenAIEngine{client: config.OpenAI, config: config}
}

func (o *OpenAIEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	opts = o.config.merge(opts)
	voice := strings.ToLower(opts.Voice)
	if !knownOpenAIVoice(voice) {
		voice = "alloy"
	}

	chunks := splitIntoChunks(text, openAIChunkLimit)
	clips := make([]Clip, 0, len(chunks))
	for i, chunk := range chunks {
		audio, err := o.client.Speech(ctx, chunk, voice, "mp3", opts.Speed)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		clips = append(clips, Clip{Audio: audio, Format: story.AudioMP3, Text: chunk})
	}
	return clips, nil
}

func (o *OpenAIEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	return append([]string(nil), openAIVoices...), nil
}

func knownOpenAIVoice(v string) bool {
	for _, known := range openAIVoices {
		if v == known {
			return true
		}
	}
	return false
}
