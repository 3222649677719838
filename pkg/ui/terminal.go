package ui

import (
	"fmt"
	"io"
)

// Banner is printed at the start of an interactive run
const Banner = `
  ╔════════════════════════════════════════════╗
  ║  TOPICSYNC  resumable Supabase bulk update  ║
  ╚════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Console writes human-facing messages. Quiet suppresses everything but
// errors; NoColor drops ANSI codes.
type Console struct {
	w       io.Writer
	NoColor bool
	Quiet   bool
}

// NewConsole creates a console writing to w
func NewConsole(w io.Writer, noColor, quiet bool) *Console {
	return &Console{w: w, NoColor: noColor, Quiet: quiet}
}

// Writer returns the underlying writer
func (c *Console) Writer() io.Writer {
	return c.w
}

func (c *Console) paint(color func(string) string, s string) string {
	if c.NoColor {
		return s
	}
	return color(s)
}

// PrintBanner prints the banner in cyan
func (c *Console) PrintBanner() {
	if c.Quiet {
		return
	}
	fmt.Fprint(c.w, c.paint(Cyan, Banner))
}

// PrintError prints an error message in red, even when quiet
func (c *Console) PrintError(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(c.w, c.paint(Red, msg))
}

// PrintSuccess prints a success message in green
func (c *Console) PrintSuccess(msg string) {
	if c.Quiet {
		return
	}
	fmt.Fprintln(c.w, c.paint(Green, msg))
}

// PrintInfo prints a label/value pair
func (c *Console) PrintInfo(label string, value string) {
	if c.Quiet {
		return
	}
	fmt.Fprintf(c.w, "%s: %s\n", c.paint(Cyan, label), c.paint(Yellow, value))
}

// PrintWarning prints a warning message in yellow
func (c *Console) PrintWarning(msg string) {
	if c.Quiet {
		return
	}
	fmt.Fprintln(c.w, c.paint(Yellow, msg))
}

// PrintHighlight prints a highlighted message in magenta
func (c *Console) PrintHighlight(msg string) {
	if c.Quiet {
		return
	}
	fmt.Fprintln(c.w, c.paint(Magenta, msg))
}
