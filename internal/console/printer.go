// Package console holds the user-facing side of the shell: colored output,
// argument splitting and typed value parsing.
package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"

	"github.com/vk/twinctl/internal/twins"
)

// Printer writes user-facing messages. It is safe for concurrent use.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool

	ok    color.Style
	alert color.Style
	err   color.Style
	muted color.Style
}

// NewPrinter creates a Printer on w. Colors are only emitted when colored
// is set.
func NewPrinter(w io.Writer, colored bool) *Printer {
	return &Printer{
		w:       w,
		colored: colored,
		ok:      color.New(color.FgGreen),
		alert:   color.New(color.FgYellow),
		err:     color.New(color.FgRed),
		muted:   color.New(color.FgGray),
	}
}

func (p *Printer) line(style color.Style, format string, args []any) {
	msg := fmt.Sprintf(format, args...)
	if p.colored {
		msg = style.Sprint(msg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, msg)
}

// Ok prints a success message in green.
func (p *Printer) Ok(format string, args ...any) { p.line(p.ok, format, args) }

// Alert prints a notice in yellow.
func (p *Printer) Alert(format string, args ...any) { p.line(p.alert, format, args) }

// Error prints a failure in red.
func (p *Printer) Error(format string, args ...any) { p.line(p.err, format, args) }

// Muted prints secondary information.
func (p *Printer) Muted(format string, args ...any) { p.line(p.muted, format, args) }

// Out prints plain text.
func (p *Printer) Out(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Response prints a JSON document indented under a heading.
func (p *Printer) Response(heading string, raw []byte) {
	if heading == "" {
		heading = "Response"
	}
	p.Alert("%s:", heading)
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		p.Out("Null response")
		return
	}
	p.Out("%s", Pretty(raw))
}

// JSON marshals v and prints it like Response.
func (p *Printer) JSON(heading string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		p.Error("Error: %v", err)
		return
	}
	p.Response(heading, raw)
}

// Failure prints err the way the service reports it: "Response <status>:
// <message>" for service errors and "Error: <message>" otherwise.
func (p *Printer) Failure(err error) {
	var apiErr *twins.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		p.Error("Response %d: %s", apiErr.Status, apiErr.Message)
		return
	}
	p.Error("Error: %v", err)
}

// Pretty indents a JSON document, returning it unchanged when it is not
// valid JSON.
func Pretty(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
