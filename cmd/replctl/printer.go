package main

import (
	"fmt"
	"io"
	"strings"

	"replbox/notify"

	"github.com/fatih/color"
)

type printer struct {
	out    io.Writer
	status *color.Color
	meta   *color.Color
	loaded *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		status: color.New(color.FgYellow),
		meta:   color.New(color.FgCyan, color.Faint),
		loaded: color.New(color.FgGreen),
	}
}

func (p *printer) print(ev notify.Event) {
	switch ev.Kind {
	case notify.KindStatus:
		p.status.Fprintf(p.out, "[status] %s\n", ev.Text)
	case notify.KindOutput:
		fmt.Fprint(p.out, ev.Text)
		if ev.Text != "" && !strings.HasSuffix(ev.Text, "\n") {
			fmt.Fprintln(p.out)
		}
	case notify.KindExecutionStarted:
		p.meta.Fprintln(p.out, "--- running ---")
	case notify.KindExecutionEnded:
		p.meta.Fprintln(p.out, "--- done ---")
	case notify.KindImportsLoaded:
		p.loaded.Fprintf(p.out, "[imports] package.json loaded (%d bytes)\n", len(ev.Text))
	default:
		fmt.Fprintf(p.out, "[%s] %s\n", ev.Kind, ev.Text)
	}
}
