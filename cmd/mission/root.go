package main

import (
	"fmt"
	"strings"

	"github.com/droidcore/mission/internal/auth"
	"github.com/droidcore/mission/internal/backend"
	"github.com/droidcore/mission/internal/config"
	"github.com/droidcore/mission/internal/tasks"
	"github.com/droidcore/mission/internal/transport"
	"github.com/droidcore/mission/internal/version"
	"github.com/droidcore/mission/pkg/logger"
	"github.com/spf13/cobra"
)

// app carries the configuration resolved before a subcommand runs.
type app struct {
	cfg *config.Config

	serverURL string
	logLevel  string
	debug     bool
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Mission control for backend agent tasks",
		Long: `Mission submits tasks to the agent backend, follows their progress
over the live event channel and talks to the chat endpoint by voice.`,
		Version:      version.RichVersion(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.serverURL, "server", "", "Backend base URL (overrides MISSION_SERVER_URL)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newWatchCommand(a))
	cmd.AddCommand(newTasksCommand(a))
	cmd.AddCommand(newTaskCommand(a))
	cmd.AddCommand(newSubmitCommand(a))
	cmd.AddCommand(newVoiceCommand(a))
	cmd.AddCommand(newAuthCommand(a))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.serverURL != "" {
		cfg.ServerURL = strings.TrimRight(a.serverURL, "/")
		// An explicit server always re-derives the event channel.
		ws, err := config.DeriveWebSocketURL(cfg.ServerURL)
		if err != nil {
			return err
		}
		cfg.WebSocketURL = ws
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	logger.Debugf("config: server=%s ws=%s home=%s", cfg.ServerURL, cfg.WebSocketURL, cfg.Home)

	a.cfg = cfg
	return nil
}

// token resolves the bearer token lazily so commands that do not talk to
// the backend keep working with an expired token.
func (a *app) token() (string, error) {
	return auth.Resolve(a.cfg)
}

func (a *app) client() (*backend.Client, error) {
	token, err := a.token()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(a.cfg.ServerURL,
		backend.WithToken(token),
		backend.WithTimeout(a.cfg.HTTPTimeout),
	), nil
}

// stream builds a task stream against the configured backend. The caller
// owns Run and Close.
func (a *app) stream(obs tasks.Observer) (*tasks.Stream, error) {
	token, err := a.token()
	if err != nil {
		return nil, err
	}
	client := backend.NewClient(a.cfg.ServerURL,
		backend.WithToken(token),
		backend.WithTimeout(a.cfg.HTTPTimeout),
	)
	dialer := transport.NewDialer(a.cfg.WebSocketURL,
		transport.WithToken(token),
		transport.WithHandshakeTimeout(a.cfg.HTTPTimeout),
	)
	return tasks.New(tasks.Options{
		Dialer:       dialer,
		Fetcher:      client,
		Submitter:    client,
		Observer:     obs,
		Policy:       tasks.ReconnectPolicy{Delay: a.cfg.ReconnectDelay},
		FetchTimeout: a.cfg.HTTPTimeout,
	}), nil
}
