package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/droidcore/mission/internal/auth"
	"github.com/spf13/cobra"
)

func newAuthCommand(a *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store or inspect the backend access token",
		Long: `Without flags, auth reports the stored token and when it expires.
With --token it stores a new token in the mission home directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if token != "" {
				if err := auth.Store(a.cfg.TokenFile, token); err != nil {
					return err
				}
				fmt.Fprintf(out, "token stored in %s\n", a.cfg.TokenFile)
				printExpiry(cmd, strings.TrimSpace(token))
				return nil
			}

			stored := strings.TrimSpace(a.cfg.AccessToken)
			source := "config"
			if stored == "" {
				data, err := os.ReadFile(a.cfg.TokenFile)
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintln(out, "no access token configured")
					return nil
				}
				if err != nil {
					return err
				}
				stored = strings.TrimSpace(string(data))
				source = a.cfg.TokenFile
			}
			fmt.Fprintf(out, "token from %s\n", source)
			printExpiry(cmd, stored)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Access token to store")
	return cmd
}

func printExpiry(cmd *cobra.Command, token string) {
	out := cmd.OutOrStdout()
	exp, ok := auth.ExpiresAt(token)
	now := time.Now()
	switch {
	case !ok:
		fmt.Fprintln(out, "token has no expiry")
	case !exp.After(now):
		fmt.Fprintf(out, "token expired at %s\n", exp.Format(time.RFC3339))
	case auth.ExpiringSoon(token, auth.ExpiryWarningWindow, now):
		fmt.Fprintf(out, "token expires soon, at %s\n", exp.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "token expires at %s\n", exp.Format(time.RFC3339))
	}
}
