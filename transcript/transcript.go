// Package transcript renders conversations for a terminal: the final
// transcript of a thread and the live output of a streamed run.
package transcript

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/runrelay/notify"
	"github.com/casualjim/runrelay/runevents"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/fogfish/opts"
)

type Renderer struct {
	w        io.Writer
	markdown bool
	style    string
	wrap     int
	glam     *glamour.TermRenderer
}

// WithMarkdown renders assistant text as markdown.
var WithMarkdown = opts.ForName[Renderer, bool]("markdown")

// WithStyle picks the glamour style; the default follows the terminal.
var WithStyle = opts.ForName[Renderer, string]("style")

// WithWordWrap sets the markdown wrap width.
var WithWordWrap = opts.ForName[Renderer, int]("wrap")

func New(w io.Writer, options ...opts.Option[Renderer]) (*Renderer, error) {
	r := &Renderer{w: w, wrap: 100}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	if !r.markdown {
		return r, nil
	}

	style := glamour.WithAutoStyle()
	if r.style != "" {
		style = glamour.WithStandardStyle(r.style)
	}
	glam, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.wrap))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	r.glam = glam
	return r, nil
}

func roleLabel(role runevents.Role) string {
	switch role {
	case runevents.RoleUser:
		return color.CyanString(string(role))
	case runevents.RoleAssistant:
		return color.MagentaString(string(role))
	default:
		return color.YellowString(string(role))
	}
}

// Message writes one "role: text" line using the last text part of the
// message. It reports false for messages without text content, which are
// skipped.
func (r *Renderer) Message(msg runevents.Message) (bool, error) {
	text, err := msg.LastText()
	if err != nil {
		return false, nil
	}
	if r.glam != nil && msg.Role == runevents.RoleAssistant {
		rendered, err := r.glam.Render(text)
		if err != nil {
			return false, fmt.Errorf("failed to render message %s: %w", msg.ID, err)
		}
		text = "\n" + strings.TrimRight(rendered, "\n")
	}
	if _, err := fmt.Fprintf(r.w, "%s: %s\n", roleLabel(msg.Role), text); err != nil {
		return false, err
	}
	return true, nil
}

// Thread writes every message with text content, in order.
func (r *Renderer) Thread(msgs []runevents.Message) error {
	for _, msg := range msgs {
		if _, err := r.Message(msg); err != nil {
			return err
		}
	}
	return nil
}

// RunFailed reports a failed run with its cause.
func (r *Renderer) RunFailed(cause string) error {
	_, err := fmt.Fprintf(r.w, "Run failed: %s\n", cause)
	return err
}

// Console returns a sink that prints a streamed run as it happens: message
// fragments inline after a role label, tool calls and errors on their own
// lines.
func Console(w io.Writer) notify.Sink {
	return &console{w: w}
}

type console struct {
	mu        sync.Mutex
	w         io.Writer
	streaming bool
}

func (c *console) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch e := n.(type) {
	case notify.Message:
		if !c.streaming {
			c.streaming = true
			_, err = fmt.Fprint(c.w, roleLabel(runevents.RoleAssistant)+": ")
		}
		if err == nil {
			_, err = fmt.Fprint(c.w, e.Content)
		}
	case notify.CompletedMessage:
		if c.streaming {
			c.streaming = false
			_, err = fmt.Fprintln(c.w)
		}
	case notify.ToolCall:
		_, err = fmt.Fprintf(c.w, "%s %s\n", color.YellowString("tool"), e.Details.Raw)
	case notify.RunStatus:
		if e.Status == runevents.RunFailed {
			_, err = fmt.Fprintf(c.w, "Run failed: %s\n", e.Error)
		}
	case notify.Failure:
		_, err = fmt.Fprintf(c.w, "Error: %s\n", e.Error)
	case notify.StreamEnd:
		if c.streaming {
			c.streaming = false
			_, err = fmt.Fprintln(c.w)
		}
	}
	return err
}
