package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/droidcore/mission/internal/console"
	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/internal/voice"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const voiceHelp = `press enter to start or stop listening, then type what you would say.
  /say <text>                      speak text aloud
  /submit <persona> key=value...   queue a task
  /tasks                           print the task table
  /quit                            leave`

func newVoiceCommand(a *app) *cobra.Command {
	var (
		ttsCommand string
		noTasks    bool
	)

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Talk to the agent backend",
		Long: `Voice runs a capture session against the chat endpoint. Lines typed
while listening stand in for recognized speech; the utterance is submitted
after the configured silence delay or when listening is stopped. Replies are
spoken with --tts, or printed.

Unless --no-tasks is set, the task event channel is followed too and the
result of a task started by a voice request is read out when it completes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := a.client()
			if err != nil {
				return err
			}

			var synth voice.Synthesizer = console.NewPrintSynthesizer(out)
			if ttsCommand != "" {
				cs, err := console.NewCommandSynthesizer(ttsCommand)
				if err != nil {
					return err
				}
				defer cs.Wait()
				synth = cs
			}

			printer := console.NewPrinter(out)
			announcer := console.NewAnnouncer(printer, printer)

			rec := console.NewLineRecognizer()
			defer rec.Close()

			session := voice.NewSession(voice.Options{
				Recognizer:   rec,
				Synthesizer:  synth,
				Chat:         client,
				SilenceDelay: a.cfg.SilenceDelay,
				DisplayLimit: a.cfg.DisplayLimit,
				ChatTimeout:  a.cfg.HTTPTimeout,
				Observer:     announcer,
			})
			defer session.Close()
			announcer.SetSpeaker(session)

			var stream *tasks.Stream
			if !noTasks {
				stream, err = a.stream(announcer)
				if err != nil {
					return err
				}
				defer stream.Close()
				stream.Run()
			}

			fmt.Fprintln(out, voiceHelp)
			sh := &voiceShell{
				session:   session,
				rec:       rec,
				stream:    stream,
				announcer: announcer,
				out:       out,
			}
			return sh.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&ttsCommand, "tts", "", "Text to speech command; the utterance is passed as its last argument")
	cmd.Flags().BoolVar(&noTasks, "no-tasks", false, "Do not follow the task event channel")
	return cmd
}

// voiceShell applies operator input to a running voice session.
type voiceShell struct {
	session   *voice.Session
	rec       *console.LineRecognizer
	stream    *tasks.Stream
	announcer *console.Announcer
	out       io.Writer
}

// run feeds input lines to the session until /quit, end of input, or ctx
// is done.
func (sh *voiceShell) run(ctx context.Context, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	lines := readLines(ctx, in)
	g.Go(func() error {
		defer quit()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if !sh.command(ctx, line) {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// command applies one input line. It returns false when the operator asked
// to leave.
func (sh *voiceShell) command(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	verb, arg, _ := strings.Cut(text, " ")
	switch verb {
	case "":
		sh.session.Toggle()
	case "/quit":
		return false
	case "/start":
		sh.session.Start()
	case "/stop":
		sh.session.Stop()
	case "/say":
		sh.session.Speak(arg)
	case "/tasks":
		if sh.stream == nil {
			fmt.Fprintln(sh.out, "task channel is off")
			break
		}
		console.RenderTasks(sh.out, sh.stream.Tasks(), console.TerminalWidth(sh.out))
	case "/submit":
		if err := sh.submit(ctx, strings.Fields(arg)); err != nil {
			fmt.Fprintf(sh.out, "submit failed: %v\n", err)
		}
	default:
		if strings.HasPrefix(verb, "/") {
			fmt.Fprintln(sh.out, voiceHelp)
			break
		}
		switch {
		case sh.rec.Feed(text):
		case sh.rec.Listening():
			fmt.Fprintln(sh.out, "busy, line dropped")
		default:
			fmt.Fprintln(sh.out, "not listening, press enter first")
		}
	}
	return true
}

// submit queues a task typed as "<persona> key=value...". The completion is
// not announced since the request did not come by voice.
func (sh *voiceShell) submit(ctx context.Context, args []string) error {
	if sh.stream == nil {
		return tasks.ErrNoSubmitter
	}
	if len(args) == 0 {
		return errors.New("usage: /submit <persona> key=value...")
	}
	payload, err := buildPayload(args[0], "", args[1:])
	if err != nil {
		return err
	}
	sh.announcer.MarkManual()
	id, err := sh.stream.Submit(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "submitted %s task %s\n", args[0], id)
	return nil
}
