package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title     = color.New(color.FgCyan, color.Bold)
	Paragraph = color.New(color.FgWhite)
	Prompt    = color.New(color.FgGreen, color.Bold)
	Error     = color.New(color.FgRed, color.Bold)
	Success   = color.New(color.FgGreen)
	Info      = color.New(color.FgBlue)
	Warning   = color.New(color.FgYellow)
	Media     = color.New(color.FgMagenta)
	Muted     = color.New(color.Faint)
)

// Disable turns colour output off, e.g. when stdout is not a terminal.
func Disable() {
	color.NoColor = true
}
