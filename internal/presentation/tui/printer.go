// Package tui renders forge output for terminals.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes command output, colouring it only on a terminal.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
	tty     bool
	width   int
}

// NewPrinter detects whether out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out, profile: termenv.Ascii}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		p.profile = termenv.ColorProfile()
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = w
		}
	}
	return p
}

// Plain returns a printer that never colours.
func Plain(out io.Writer) *Printer {
	return &Printer{out: out, profile: termenv.Ascii}
}

// IsTerminal reports whether output goes to a terminal.
func (p *Printer) IsTerminal() bool { return p.tty }

// Writer returns the underlying destination.
func (p *Printer) Writer() io.Writer { return p.out }

// Println writes a line.
func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

// Printf writes formatted text.
func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Heading styles s as a title.
func (p *Printer) Heading(s string) string {
	return p.profile.String(s).Foreground(p.profile.Color("#818cf8")).Bold().String()
}

// Muted styles s as secondary information.
func (p *Printer) Muted(s string) string {
	return p.profile.String(s).Foreground(p.profile.Color("#6b7280")).String()
}

// Success styles s in green.
func (p *Printer) Success(s string) string {
	return p.profile.String(s).Foreground(p.profile.Color("#22c55e")).String()
}

// Danger styles s in red.
func (p *Printer) Danger(s string) string {
	return p.profile.String(s).Foreground(p.profile.Color("#ef4444")).String()
}

// Diff colours a rendered diff line by line.
func (p *Printer) Diff(rendered string) string {
	lines := strings.Split(rendered, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		switch {
		case strings.HasPrefix(trimmed, "+"):
			lines[i] = p.Success(line)
		case strings.HasPrefix(trimmed, "-"):
			lines[i] = p.Danger(line)
		case strings.HasPrefix(trimmed, "@@"):
			lines[i] = p.Muted(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Markdown renders md with glamour on a terminal and returns it unchanged otherwise.
func (p *Printer) Markdown(md string) string {
	if !p.tty {
		return md
	}
	out, err := NewRenderer(p.width)(md)
	if err != nil {
		return md
	}
	return out
}
