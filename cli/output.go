package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Printer writes status lines, coloured when the terminal allows it.
type Printer struct {
	out io.Writer
	err io.Writer

	success *color.Color
	warn    *color.Color
	fail    *color.Color
	bold    *color.Color
}

// NewPrinter creates a printer. Colours are also dropped when NO_COLOR is set.
func NewPrinter(out, errOut io.Writer, useColors bool) *Printer {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		useColors = false
	}
	p := &Printer{
		out:     out,
		err:     errOut,
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		bold:    color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.success, p.warn, p.fail, p.bold} {
		if useColors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) Success(format string, args ...any) {
	p.success.Fprintf(p.out, "✓ "+format+"\n", args...)
}

func (p *Printer) Warn(format string, args ...any) {
	p.warn.Fprintf(p.err, "! "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.fail.Fprintf(p.err, "✗ "+format+"\n", args...)
}

func (p *Printer) Print(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Field prints an aligned "label: value" line.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.out, "%s %s\n", p.bold.Sprintf("%-10s", label+":"), value)
}

// Table renders rows under headers without borders.
func (p *Printer) Table(headers []string, rows [][]string) error {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
