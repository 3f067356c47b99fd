package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/droidcore/mission/internal/backend"
	"github.com/droidcore/mission/internal/console"
	"github.com/droidcore/mission/internal/tasks"
	"github.com/spf13/cobra"
)

func newTasksCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List backend tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			records, err := client.ListTasks(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, records)
			}
			list := make([]tasks.Task, 0, len(records))
			for _, rec := range records {
				list = append(list, tasks.FromRecord(rec))
			}
			tasks.SortNewestFirst(list)
			console.RenderTasks(out, list, console.TerminalWidth(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw task records as JSON")
	return cmd
}

func newTaskCommand(a *app) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "task <id>",
		Short: "Show one task",
		Long: `Task prints the status, logs and result of one task. With --follow it
stays on the event channel and prints new log lines until the task
completes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()

			client, err := a.client()
			if err != nil {
				return err
			}
			rec, err := client.GetTask(cmd.Context(), id)
			if errors.Is(err, backend.ErrTaskNotFound) {
				return fmt.Errorf("task %s not found", id)
			}
			if err != nil {
				return err
			}
			t := tasks.FromRecord(rec)
			console.RenderTask(out, t)
			if !follow || t.Done() {
				return nil
			}

			watcher := newCompletionWatcher(id, console.NewPrinter(out))
			stream, err := a.stream(watcher)
			if err != nil {
				return err
			}
			defer stream.Close()

			stream.Focus(id)
			stream.Run()
			select {
			case <-watcher.done:
				return nil
			case <-cmd.Context().Done():
				return nil
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the task until it completes")
	return cmd
}

// completionWatcher forwards to a printer and signals when one task
// completes.
type completionWatcher struct {
	*console.Printer

	id   string
	once sync.Once
	done chan struct{}
}

func newCompletionWatcher(id string, p *console.Printer) *completionWatcher {
	return &completionWatcher{Printer: p, id: id, done: make(chan struct{})}
}

func (w *completionWatcher) OnTaskCompleted(t tasks.Task, focused bool) {
	w.Printer.OnTaskCompleted(t, focused)
	if t.ID == w.id {
		w.once.Do(func() { close(w.done) })
	}
}

// OnSnapshot also catches a completion that happened while disconnected.
func (w *completionWatcher) OnSnapshot(list []tasks.Task) {
	w.Printer.OnSnapshot(list)
	for _, t := range list {
		if t.ID == w.id && t.Done() {
			w.once.Do(func() {
				w.Printer.OnTaskCompleted(t, true)
				close(w.done)
			})
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
