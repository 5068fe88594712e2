//go:build windows

package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"storynest/internal/domain/story"
	"strings"
)

// SAPIEngine implements Windows SAPI TTS through System.Speech, rendering to
// a WAV file instead of the speakers.
type SAPIEngine struct {
	config Config
}

// newSAPIEngine creates a new Windows SAPI TTS engine
func newSAPIEngine(config Config) (Synthesizer, error) {
	if _, err := exec.LookPath("powershell"); err != nil {
		return nil, fmt.Errorf("powershell not found: %w", err)
	}
	return &SAPIEngine{config: config}, nil
}

// The text is read from stdin so it never has to be quoted into the script.
const sapiScript = `Add-Type -AssemblyName System.Speech
$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer
$synth.Rate = %d
$synth.Volume = %d
if ('%s' -ne '') { $synth.SelectVoice('%s') } else {
  try { $synth.SelectVoiceByHints('NotSet', 'NotSet', 0, [Globalization.CultureInfo]'%s') } catch {}
}
$synth.SetOutputToWaveFile('%s')
$synth.Speak([Console]::In.ReadToEnd())
$synth.Dispose()`

func (s *SAPIEngine) Synthesize(ctx context.Context, text string, opts Options) ([]Clip, error) {
	opts = s.config.merge(opts)

	dir, err := os.MkdirTemp("", "storynest-sapi")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.wav")

	voice := strings.ReplaceAll(opts.Voice, "'", "''")
	script := fmt.Sprintf(sapiScript,
		int(opts.Speed*10)-10,  // SAPI range -10 to 10
		int(opts.Volume*100),   // SAPI range 0 to 100
		voice, voice,
		googleLanguageCodes[opts.Language.Code()],
		out)

	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	cmd.Stdin = strings.NewReader(text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("SAPI error: %w: %s", err, strings.TrimSpace(string(output)))
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("SAPI produced no audio: %w", err)
	}
	return []Clip{{Audio: audio, Format: story.AudioWAV, Text: text}}, nil
}

func (s *SAPIEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		`Add-Type -AssemblyName System.Speech; (New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | ForEach-Object { $_.VoiceInfo.Name }`)
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var voices []string
	for _, line := range strings.Split(string(output), "\n") {
		if v := strings.TrimSpace(line); v != "" {
			voices = append(voices, v)
		}
	}
	return voices, nil
}
