package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-cook/diag"
)

// palette holds one printer's colors. Palettes are not shared between
// printers that may run concurrently.
type palette struct {
	error, warning, note, loc, code *color.Color
}

func newPalette(on bool) palette {
	p := palette{
		error:   color.New(color.FgRed, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		note:    color.New(color.FgCyan),
		loc:     color.New(color.Bold),
		code:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.error, p.warning, p.note, p.loc, p.code} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// printer renders diagnostics and failures.
type printer struct {
	w       io.Writer
	colors  palette
	colored bool
}

func newPrinter(cmd *cobra.Command, w io.Writer) *printer {
	mode, _ := cmd.Root().PersistentFlags().GetString("color")
	var on bool
	switch mode {
	case "on":
		on = true
	case "off":
		on = false
	default:
		f, ok := w.(*os.File)
		on = ok && isTerminal(f) && os.Getenv("NO_COLOR") == ""
	}
	return &printer{w: w, colors: newPalette(on), colored: on}
}

// fork returns a printer writing to w with its own palette.
func (p *printer) fork(w io.Writer) *printer {
	return &printer{w: w, colors: newPalette(p.colored), colored: p.colored}
}

// plainPrinter writes to w without colors.
func plainPrinter(w io.Writer) *printer {
	return &printer{w: w, colors: newPalette(false)}
}

func (p *printer) severity(s diag.Severity) string {
	switch {
	case s == diag.SevError:
		return p.colors.error.Sprint("error")
	case s.IsWarning():
		return p.colors.warning.Sprint("warning")
	case s == diag.SevNote:
		return p.colors.note.Sprint("note")
	default:
		return p.colors.note.Sprint("info")
	}
}

// diagnostic prints one diagnostic as location: severity: message [code].
func (p *printer) diagnostic(d diag.Diagnostic) {
	if d.Location != nil {
		if loc := d.Location.String(); loc != "" {
			fmt.Fprint(p.w, p.colors.loc.Sprint(loc+":"), " ")
		}
	}
	fmt.Fprint(p.w, p.severity(d.Severity), ": ", d.Message)
	if d.Code != "" {
		fmt.Fprint(p.w, " ", p.colors.code.Sprint("["+d.Code+"]"))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) diagnostics(ds []diag.Diagnostic) {
	for _, d := range ds {
		p.diagnostic(d)
	}
}

func (p *printer) failure(err error) {
	fmt.Fprintln(p.w, p.colors.error.Sprint("watcook:"), err)
}

// reportedError is returned once the diagnostics behind a failure have
// been printed.
type reportedError struct {
	name     string
	errors   int
	warnings int
}

func (e *reportedError) Error() string {
	return fmt.Sprintf("%s: %d error(s), %d warning(s)", e.name, e.errors, e.warnings)
}
