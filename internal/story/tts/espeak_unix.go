//go:build !windows

package tts

// espeakCandidates lists the executables tried, in order of preference.
func espeakCandidates() []string {
	return []string{"espeak-ng", "espeak"}
}
