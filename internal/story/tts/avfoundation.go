//go:build !darwin

package tts

import "errors"

func newAVFoundationEngine(Config) (Synthesizer, error) {
	return nil, errors.New("the 'say' command is only available on macOS")
}
