//go:build !windows

package tts

import "errors"

func newSAPIEngine(Config) (Synthesizer, error) {
	return nil, errors.New("SAPI is only available on Windows")
}
