package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/droidcore/mission/internal/wire"
	"github.com/spf13/cobra"
)

func newSubmitCommand(a *app) *cobra.Command {
	var (
		fields  []string
		rawJSON string
	)

	cmd := &cobra.Command{
		Use:   "submit <persona>",
		Short: "Submit a task for a persona",
		Long: `Submit queues a task on the backend. Persona specific inputs are passed
with --field key=value (repeatable) or as a JSON object with --json.
Fields win over keys in the JSON object.`,
		Example: `  mission submit rider --field pickup="MG Road" --field drop=Airport
  mission submit foodie --json '{"dish":"dosa","count":2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			persona := strings.TrimSpace(args[0])
			if persona == "" {
				return errors.New("persona is required")
			}
			payload, err := buildPayload(persona, rawJSON, fields)
			if err != nil {
				return err
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			id, err := client.SubmitTask(cmd.Context(), payload)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if id == "" {
				fmt.Fprintf(out, "submitted %s task\n", persona)
				return nil
			}
			fmt.Fprintf(out, "submitted %s task %s\n", persona, id)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&fields, "field", "F", nil, "Payload field as key=value")
	cmd.Flags().StringVar(&rawJSON, "json", "", "Payload fields as a JSON object")
	return cmd
}

// buildPayload merges the JSON object and key=value fields into a payload
// for persona.
func buildPayload(persona, rawJSON string, fields []string) (wire.TaskPayload, error) {
	merged := map[string]any{}
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &merged); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
	}
	parsed, err := parseFields(fields)
	if err != nil {
		return nil, err
	}
	for k, v := range parsed {
		merged[k] = v
	}
	return wire.NewTaskPayload(persona, merged), nil
}

// parseFields parses key=value pairs. Values are kept as strings.
func parseFields(fields []string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		key, val, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", f)
		}
		if key == "persona" {
			return nil, errors.New("persona is set by the argument, not a field")
		}
		out[key] = val
	}
	return out, nil
}
