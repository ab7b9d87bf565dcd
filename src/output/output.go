package output

import (
	"fmt"
	"io"
	"os"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Printer writes severity-tagged lines for everything that happens outside
// a framed section: preflight checks, walker warnings, watcher events.
type Printer struct {
	Writer io.Writer
	Color  bool
}

// NewPrinter creates a printer writing to stdout with color auto-detection.
func NewPrinter() *Printer {
	return &Printer{
		Writer: os.Stdout,
		Color:  UseColor(),
	}
}

// Infof writes an informational line.
func (p *Printer) Infof(format string, args ...any) {
	p.tagged(colorGray, "INFO", format, args...)
}

// Warnf writes a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.tagged(colorYellow, "WARN", format, args...)
}

// Errorf writes an error line.
func (p *Printer) Errorf(format string, args ...any) {
	p.tagged(colorRed, "FAIL", format, args...)
}

// Headf writes a bold unprefixed line.
func (p *Printer) Headf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.Color {
		fmt.Fprintf(p.Writer, "%s%s%s\n", colorBold, msg, colorReset)
	} else {
		fmt.Fprintln(p.Writer, msg)
	}
}

func (p *Printer) tagged(color, tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.Color {
		fmt.Fprintf(p.Writer, "%s%s%s %s\n", color, tag, colorReset, msg)
	} else {
		fmt.Fprintf(p.Writer, "%s %s\n", tag, msg)
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}
