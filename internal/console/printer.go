// Package console renders task and voice activity in a terminal and adapts
// line-based input to the voice engine interfaces.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/internal/voice"
	"github.com/droidcore/mission/internal/wire"
)

// Printer writes one line per notification. It implements tasks.Observer and
// voice.Observer and is safe for concurrent use.
type Printer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time

	// Verbose prints log lines of every task, not only the focused one.
	Verbose bool
}

var (
	_ tasks.Observer = (*Printer)(nil)
	_ voice.Observer = (*Printer)(nil)
)

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, now: time.Now}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stamp := p.now().Format("15:04:05")
	fmt.Fprintf(p.w, stamp+" "+format+"\n", args...) //nolint:errcheck
}

// OnConnection implements tasks.Observer.
func (p *Printer) OnConnection(connected bool) {
	if connected {
		p.printf("* connected")
		return
	}
	p.printf("* disconnected, reconnecting")
}

// OnTaskStarted implements tasks.Observer.
func (p *Printer) OnTaskStarted(t tasks.Task) {
	p.printf("+ %s %s started", t.ID, personaLabel(t.Persona))
}

// OnTaskLog implements tasks.Observer.
func (p *Printer) OnTaskLog(id, message string, focused bool) {
	if !focused && !p.Verbose {
		return
	}
	p.printf("  %s | %s", id, message)
}

// OnTaskCompleted implements tasks.Observer.
func (p *Printer) OnTaskCompleted(t tasks.Task, focused bool) {
	line := fmt.Sprintf("%s %s %s", statusMark(t.Status), t.ID, t.Status)
	if msg := resultText(t.Result); msg != "" {
		line += ": " + msg
	}
	p.printf("%s", line)
	if focused && len(t.Result) > 0 {
		p.printf("  %s | result %s", t.ID, string(t.Result))
	}
}

// OnSnapshot implements tasks.Observer.
func (p *Printer) OnSnapshot(list []tasks.Task) {
	running := 0
	for _, t := range list {
		if !t.Done() {
			running++
		}
	}
	p.printf("* loaded %d tasks (%d running)", len(list), running)
}

// OnStatus implements voice.Observer.
func (p *Printer) OnStatus(s voice.StatusUpdate) {
	switch s.Kind {
	case voice.StatusKindError, voice.StatusKindFatal:
		p.printf("! %s", s.Text)
	default:
		p.printf("~ %s", s.Text)
	}
}

// OnMessage implements voice.Observer.
func (p *Printer) OnMessage(m voice.Message) {
	p.printf("%s> %s", m.Sender, m.Text)
}

func personaLabel(persona string) string {
	if persona == "" {
		return "(unknown)"
	}
	return persona
}

func statusMark(s tasks.Status) string {
	switch s {
	case tasks.StatusSuccess:
		return "✓"
	case tasks.StatusFailed:
		return "✗"
	default:
		return "…"
	}
}

// resultText returns the human readable part of a task result.
func resultText(raw []byte) string {
	summary := wire.SummarizeResult(raw)
	switch {
	case summary.Message != "":
		return strings.TrimSpace(summary.Message)
	case summary.Error != "":
		return strings.TrimSpace(summary.Error)
	default:
		return ""
	}
}
