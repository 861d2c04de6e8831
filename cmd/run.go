// File: cmd/run.go
// Description: The interactive pipeline loop. Reads one input per line,
// pushes it through context analysis, intent recognition and decision
// generation, and prints the resulting action. The proactive scheduler runs
// alongside until the command exits.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/kestrelhq/kestrel/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRunCommand() *cobra.Command {
	var (
		userID     string
		contextRaw string
		input      string
		once       bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision pipeline interactively.",
		Long: `Run starts the proactive scheduler and reads one input per line from
stdin. Each line is analyzed, classified and turned into an autonomous
action, which is printed as JSON. With --once a single --input is processed
and the command exits.`,
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

			contextData, err := parseContextData(contextRaw)
			if err != nil {
				return err
			}

			if once {
				if input == "" {
					return fmt.Errorf("--once requires --input")
				}
				return processInput(cmd.Context(), p, input, contextData, userID, cmd.OutOrStdout())
			}

			// The scheduler fires armed tasks while the loop is reading.
			schedCtx, stopSched := context.WithCancel(cmd.Context())
			defer stopSched()
			go p.proactive.Run(schedCtx)

			fmt.Fprintln(cmd.OutOrStdout(), "kestrel ready; one input per line, Ctrl-D to exit")
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				if err := processInput(cmd.Context(), p, line, contextData, userID, cmd.OutOrStdout()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}

	runCmd.Flags().StringVarP(&userID, "user", "u", "default", "user ID the pipeline acts for")
	runCmd.Flags().StringVar(&contextRaw, "context", "", "context data as a JSON object")
	runCmd.Flags().StringVarP(&input, "input", "i", "", "single input to process with --once")
	runCmd.Flags().BoolVar(&once, "once", false, "process --input and exit")
	return runCmd
}

// processInput runs one input through the full pipeline and prints the
// generated action.
func processInput(ctx context.Context, p *pipeline, input string, contextData map[string]interface{}, userID string, out io.Writer) error {
	analysis := p.analyzer.AnalyzeContext(ctx, contextData, userID)
	result := p.recognizer.RecognizeIntent(ctx, input, &analysis, userID)

	action, err := p.decision.GenerateAction(ctx, result.Intent, &analysis, userID)
	if err != nil {
		return err
	}

	report := struct {
		Intent schemas.UserIntent       `json:"intent"`
		Action schemas.AutonomousAction `json:"action"`
	}{result.Intent, action}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = out.Write(append(raw, '\n'))
	return err
}

func parseContextData(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("invalid --context JSON: %w", err)
	}
	return data, nil
}
