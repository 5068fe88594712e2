//go:build windows

package tts

// espeakCandidates lists the executables tried, in order of preference.
// The Windows installer does not add eSpeak NG to PATH, so its default
// install locations are tried as well.
func espeakCandidates() []string {
	return []string{
		"espeak-ng.exe",
		"espeak.exe",
		`C:\Program Files\eSpeak NG\espeak-ng.exe`,
		`C:\Program Files (x86)\eSpeak NG\espeak-ng.exe`,
		`C:\Program Files (x86)\eSpeak\command_line\espeak.exe`,
	}
}
