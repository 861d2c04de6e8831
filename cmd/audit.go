// File: cmd/audit.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tamper-evident audit log.",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the audit log by stage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecognizer(cmd, func(p *pipeline) error {
				stats, err := p.audit.Stats(cmd.Context())
				if err != nil {
					return err
				}
				raw, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Walk the hash chain and report the first broken link.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecognizer(cmd, func(p *pipeline) error {
				if err := p.audit.Verify(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "audit chain intact")
				return nil
			})
		},
	}

	var exportPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit log as newline-delimited JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRecognizer(cmd, func(p *pipeline) error {
				out := cmd.OutOrStdout()
				if exportPath != "" {
					f, err := os.Create(exportPath)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				return p.audit.Export(cmd.Context(), out)
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "write to file instead of stdout")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop audit records older than the retention window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be a positive duration")
			}
			return withRecognizer(cmd, func(p *pipeline) error {
				dropped, err := p.audit.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d records\n", dropped)
				return nil
			})
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention window, e.g. 720h")

	auditCmd.AddCommand(statsCmd, verifyCmd, exportCmd, pruneCmd)
	return auditCmd
}
