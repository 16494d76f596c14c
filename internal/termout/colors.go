// Package termout prints operator-facing progress output for the installer.
package termout

import "fmt"

// ANSI color codes for terminal output
const (
	ColorReset = "\033[0m"

	// Subtle background colors for stage distinction
	BgLightBlue   = "\033[48;5;153m\033[38;5;0m"
	BgLightGreen  = "\033[48;5;158m\033[38;5;0m"
	BgLightYellow = "\033[48;5;229m\033[38;5;0m"
	BgLightCyan   = "\033[48;5;195m\033[38;5;0m"

	// Foreground colors for status messages
	FgGreen  = "\033[32m"
	FgYellow = "\033[33m"
	FgRed    = "\033[31m"
	FgCyan   = "\033[36m"
)

// stageColors are cycled through for successive stage headers.
var stageColors = []string{
	BgLightBlue,
	BgLightGreen,
	BgLightYellow,
	BgLightCyan,
}

// PrintStageHeader prints a colored header for the n-th stage (1-based).
func PrintStageHeader(n int, title string) {
	color := stageColors[(n-1)%len(stageColors)]
	fmt.Printf("\n%s=== Stage %d: %s ===%s\n", color, n, title, ColorReset)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	fmt.Printf("%s[OK]%s %s\n", FgGreen, ColorReset, msg)
}

// PrintSkip prints a message for a stage whose effect is already in place
func PrintSkip(msg string) {
	fmt.Printf("%s[SKIP]%s %s\n", FgCyan, ColorReset, msg)
}

// PrintWarning prints a warning message
func PrintWarning(msg string) {
	fmt.Printf("%s[WARN]%s %s\n", FgYellow, ColorReset, msg)
}

// PrintInfo prints an info message
func PrintInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", FgCyan, ColorReset, msg)
}

// PrintCommand prints a command line the installer would execute
func PrintCommand(cmd string) {
	fmt.Printf("       %s$%s %s\n", FgCyan, ColorReset, cmd)
}

// PrintSectionHeader prints a colored section header outside the stage sequence
func PrintSectionHeader(title string) {
	fmt.Printf("\n%s=== %s ===%s\n", BgLightBlue, title, ColorReset)
}
