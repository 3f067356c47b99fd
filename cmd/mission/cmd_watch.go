package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/droidcore/mission/internal/console"
	"github.com/droidcore/mission/internal/tasks"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		focus   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow task progress on the live event channel",
		Long: `Watch loads the task list, keeps the event channel open and prints
task starts, logs and completions as they arrive.

While watching, type a command and press enter:
  focus <id>   show log lines for one task
  unfocus      hide log lines again
  list         print the task table
  resync       reload the task list from the backend`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := console.NewPrinter(cmd.OutOrStdout())
			printer.Verbose = verbose

			stream, err := a.stream(printer)
			if err != nil {
				return err
			}
			defer stream.Close()

			stream.Run()
			if focus != "" {
				stream.Focus(focus)
			}
			return watchLoop(cmd.Context(), stream, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&focus, "focus", "", "Task id whose log lines are shown")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show log lines for every task")
	return cmd
}

// watchLoop applies operator commands until ctx is done or input ends.
func watchLoop(ctx context.Context, stream *tasks.Stream, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	lines := readLines(ctx, in)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					// Keep following the stream once stdin is gone.
					<-ctx.Done()
					return nil
				}
				watchCommand(stream, line, out)
			}
		}
	})
	return g.Wait()
}

func watchCommand(stream *tasks.Stream, line string, out io.Writer) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch verb {
	case "":
	case "focus":
		stream.Focus(strings.TrimSpace(arg))
	case "unfocus":
		stream.Focus("")
	case "list":
		console.RenderTasks(out, stream.Tasks(), console.TerminalWidth(out))
	case "resync":
		stream.Resync()
	default:
		fmt.Fprintf(out, "unknown command %q\n", verb)
	}
}

// readLines scans r on its own goroutine until ctx is done. A blocked read
// cannot be interrupted, so that goroutine exits with the process.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
