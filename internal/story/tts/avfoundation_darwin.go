//go:build darwin

package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"storynest/internal/domain/story"
	"strings"
)

// AVFoundationEngine renders speech with the macOS 'say' command, which
// drives AVSpeechSynthesizer, into a WAV file.
type AVFoundationEngine struct {
	config Config
}

// newAVFoundationEngine creates a new macOS AVFoundation TTS engine
func newAVFoundationEngine(config Config) (Synthesizer, error) {
	if _, err := exec.LookPath("say"); err != nil {
		return nil, fmt.Errorf("'say' not found: %w", err)
	}
	return &AVFoundationEngine{config: config}, nil
}

func (av *AVFoundationEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	opts = av.config.merge(opts)

	dir, err := os.MkdirTemp("", "storynest-say")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.wav")

	args := []string{"-o", out, "--file-format=WAVE", "--data-format=LEI16@22050"}

	if opts.Voice != "" {
		args = append(args, "-v", opts.Voice)
	}

	// Rate in words per minute, default is ~175
	args = append(args, "-r", fmt.Sprintf("%.0f", 175*opts.Speed))

	// Read text from stdin
	args = append(args, "-f", "-")

	cmd := exec.CommandContext(ctx, "say", args...)
	cmd.Stdin = strings.NewReader(text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("AVFoundation error: %w: %s", err, strings.TrimSpace(string(output)))
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("AVFoundation produced no audio: %w", err)
	}
	return []Clip{{Audio: audio, Format: story.AudioWAV, Text: text}}, nil
}

var sayVoiceLine = regexp.MustCompile(`^(.+?)\s{2,}([a-z]{2}[_-][A-Z]{2})`)

func (av *AVFoundationEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, err
	}

	var voices []string
	for _, line := range strings.Split(string(output), "\n") {
		if m := sayVoiceLine.FindStringSubmatch(line); m != nil {
			voices = append(voices, strings.TrimSpace(m[1]))
		}
	}
	return voices, nil
}
