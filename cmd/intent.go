// File: cmd/intent.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newIntentCommand() *cobra.Command {
	var userID string

	intentCmd := &cobra.Command{
		Use:   "intent [input...]",
		Short: "Classify a single input without generating an action.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			p, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.close(cmd.Context())

			input := strings.Join(args, " ")
			result := p.recognizer.RecognizeIntent(cmd.Context(), input, nil, userID)

			raw, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}

	intentCmd.Flags().StringVarP(&userID, "user", "u", "default", "user ID the classification runs for")

	optOutCmd := &cobra.Command{
		Use:   "opt-out",
		Short: "Record a standing opt-out from intent recognition.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecognizer(cmd, func(p *pipeline) error {
				if err := p.recognizer.OptOut(cmd.Context(), userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %q opted out\n", userID)
				return nil
			})
		},
	}
	optInCmd := &cobra.Command{
		Use:   "opt-in",
		Short: "Clear a previous opt-out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecognizer(cmd, func(p *pipeline) error {
				if err := p.recognizer.OptIn(cmd.Context(), userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %q opted in\n", userID)
				return nil
			})
		},
	}
	intentCmd.AddCommand(optOutCmd, optInCmd)
	return intentCmd
}

// withRecognizer builds a pipeline for the duration of one subcommand.
func withRecognizer(cmd *cobra.Command, fn func(p *pipeline) error) error {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return err
	}
	p, err := buildPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer p.close(cmd.Context())
	return fn(p)
}
