package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Banner is printed above interactive runs.
const Banner = `
 ┌─┐┌─┐┌─┐┌┬┐┌─┐┬─┐┌─┐┌┐
 ├─┘│ │└─┐ │ │ ┬├┬┘├─┤├┴┐
 ┴  └─┘└─┘ ┴ └─┘┴└─┴ ┴└─┘
`

var (
	cyan    = lipgloss.Color("#00FFFF")
	yellow  = lipgloss.Color("#FFFF00")
	red     = lipgloss.Color("#FF5555")
	green   = lipgloss.Color("#39FF14")
	magenta = lipgloss.Color("#FF00FF")
)

// Styles for terminal output. lipgloss drops the colors when the output is
// not a terminal.
var (
	Cyan    = style(lipgloss.NewStyle().Foreground(cyan))
	Yellow  = style(lipgloss.NewStyle().Foreground(yellow))
	Red     = style(lipgloss.NewStyle().Foreground(red))
	Green   = style(lipgloss.NewStyle().Foreground(green))
	Magenta = style(lipgloss.NewStyle().Foreground(magenta))
	Dim     = style(lipgloss.NewStyle().Faint(true))
	Bold    = style(lipgloss.NewStyle().Bold(true))
)

func style(s lipgloss.Style) func(string) string {
	return func(text string) string {
		return s.Render(text)
	}
}

// Out is where the Print helpers write.
var Out io.Writer = os.Stdout

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ColorEnabled reports whether Out should carry ANSI colors.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := Out.(*os.File)
	return ok && IsTerminal(f)
}

// PrintBanner prints the banner
func PrintBanner() {
	fmt.Fprint(Out, Cyan(Banner))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(Out, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Out, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Out, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Out, Magenta(msg))
}
