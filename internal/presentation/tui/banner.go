package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the forge banner with the version underneath.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   __                       ", "#f59e0b"},
		{"  / _|___  _ _  __ _  ___   ", "#f97316"},
		{" |  _/ _ \\| '_|/ _` |/ -_)  ", "#ef4444"},
		{" |_| \\___/|_|  \\__, |\\___|  ", "#e11d48"},
		{"               |___/        ", "#be123c"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  "+version).Faint())
	fmt.Fprintln(w)
}
