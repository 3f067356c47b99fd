package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/droidcore/mission/internal/tasks"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	defaultWidth = 100
	minWidth     = 60
)

// TerminalWidth returns the column count of w when it is a terminal, and a
// fixed default otherwise.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width < minWidth {
		return defaultWidth
	}
	return width
}

// RenderTasks writes a task table, newest first, fitted to width columns.
func RenderTasks(w io.Writer, list []tasks.Task, width int) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no tasks") //nolint:errcheck
		return
	}
	if width < minWidth {
		width = minWidth
	}

	const (
		idCol      = 12
		personaCol = 10
		statusCol  = 8
		timeCol    = 19
	)
	rest := width - idCol - personaCol - statusCol - timeCol - 4
	header := []string{"ID", "PERSONA", "STATUS", "CREATED", "LAST"}
	widths := []int{idCol, personaCol, statusCol, timeCol, rest}

	writeRow(w, header, widths)
	for _, t := range list {
		created := ""
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		last := resultText(t.Result)
		if last == "" && len(t.Logs) > 0 {
			last = t.Logs[len(t.Logs)-1]
		}
		writeRow(w, []string{t.ID, personaLabel(t.Persona), string(t.Status), created, last}, widths)
	}
}

func writeRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		cell = strings.ReplaceAll(cell, "\n", " ")
		cell = runewidth.Truncate(cell, widths[i], "…")
		if i < len(cells)-1 {
			cell = runewidth.FillRight(cell, widths[i])
			cell += " "
		}
		b.WriteString(cell)
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " ")) //nolint:errcheck
}

// RenderTask writes the detail view of one task.
func RenderTask(w io.Writer, t tasks.Task) {
	fmt.Fprintf(w, "id:       %s\n", t.ID)
	fmt.Fprintf(w, "persona:  %s\n", personaLabel(t.Persona))
	fmt.Fprintf(w, "status:   %s\n", t.Status)
	if !t.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:  %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if len(t.Payload) > 0 {
		fmt.Fprintf(w, "payload:  %s\n", string(t.Payload))
	}
	fmt.Fprintln(w, "logs:")
	for _, line := range t.Logs {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if len(t.Result) > 0 {
		fmt.Fprintf(w, "result:   %s\n", string(t.Result))
	}
}
