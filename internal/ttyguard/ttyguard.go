// Package ttyguard keeps non-interactive sgv invocations from probing the
// terminal. Import it for side effects before any TUI package.
package ttyguard

import (
	"os"
	"strings"
)

// Lipgloss/termenv background detection writes OSC/DSR queries to stdout.
// Output of serve, export and --version is often piped or captured, so
// those runs set CI=1, which termenv treats as "do not probe".
func init() {
	if os.Getenv("CI") != "" {
		return
	}
	if !ShouldSuppress(os.Args[1:], os.Getenv("SGV_TEST_MODE") != "") {
		return
	}
	_ = os.Setenv("CI", "1")
}

// ShouldSuppress reports whether args describe a run that never draws the
// TUI.
func ShouldSuppress(args []string, testMode bool) bool {
	if testMode {
		return true
	}
	if len(args) > 0 {
		switch args[0] {
		case "serve", "export", "help":
			return true
		}
	}
	for _, arg := range args {
		switch strings.TrimLeft(arg, "-") {
		case "version", "help", "h":
			if strings.HasPrefix(arg, "-") {
				return true
			}
		}
	}
	return false
}
