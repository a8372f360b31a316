package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the NodeWeave ASCII art banner.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	// Teal to violet, one shade per line
	lines := []struct {
		text  string
		color string
	}{
		{`  _   _           _    __        __               `, "#2dd4bf"},
		{` | \ | | ___   __| | __\ \      / /__  __ ___   _____ `, "#22d3ee"},
		{` |  \| |/ _ \ / _' |/ _ \ \ /\ / / _ \/ _' \ \ / / _ \`, "#38bdf8"},
		{` | |\  | (_) | (_| |  __/\ V  V /  __/ (_| |\ V /  __/`, "#818cf8"},
		{` |_| \_|\___/ \__,_|\___| \_/\_/ \___|\__,_| \_/ \___|`, "#a78bfa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
