// Cross-platform eSpeak implementation
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"storynest/internal/domain/story"
	"strconv"
	"strings"
)

// ESpeakEngine implements TTS using eSpeak/eSpeak-NG, capturing WAV output.
type ESpeakEngine struct {
	config Config
	path   string
}

// newESpeakEngine locates espeak-ng or espeak on PATH and checks it runs.
func newESpeakEngine(config Config) (*ESpeakEngine, error) {
	for _, name := range espeakCandidates() {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if err := exec.Command(path, "--version").Run(); err != nil {
			return nil, fmt.Errorf("%s --version: %w", name, err)
		}
		return &ESpeakEngine{config: config, path: path}, nil
	}
	return nil, errors.New("eSpeak executable not found in PATH")
}

// espeakArgs builds the command line for one synthesis call.
func espeakArgs(opts Options) []string {
	args := []string{"--stdout"}

	// Voice defaults to the story language
	voice := opts.Voice
	if voice == "" {
		voice = opts.Language.Code()
	}
	args = append(args, "-v", voice)

	// Speed in words per minute, default is 175
	args = append(args, "-s", strconv.Itoa(int(175*opts.Speed)))

	// Amplitude 0-200, default is 100
	args = append(args, "-a", strconv.Itoa(int(100*opts.Volume)))

	// Read text from stdin
	return append(args, "--stdin")
}

func (e *ESpeakEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	opts = e.config.merge(opts)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, espeakArgs(opts)...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("eSpeak failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if !isWAV(out) {
		return nil, errors.New("eSpeak produced no WAV audio")
	}

	return []Clip{{Audio: out, Format: story.AudioWAV, Text: text}}, nil
}

func (e *ESpeakEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, e.path, "--voices")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	return parseESpeakVoices(string(output)), nil
}

// parseESpeakVoices reads the VoiceName column of `espeak --voices`.
func parseESpeakVoices(output string) []string {
	var voices []string
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue
		}
		// Pty Language Age/Gender VoiceName File Other Languages
		if fields := strings.Fields(line); len(fields) >= 4 {
			voices = append(voices, fields[3])
		}
	}
	return voices
}
