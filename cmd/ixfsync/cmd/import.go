package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
)

var importCmd = &cobra.Command{
	Use:   "import <ixlan-id> <file>",
	Short: "Import an IX-F member export for a LAN",
	Long: `Import reads an IX-F member export from file, or stdin when file is "-",
and reconciles it with the sessions of the LAN. Networks that allow IXP
updates get their changes applied, everything else is staged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lanID, err := parseID("ixlan id", args[0])
		if err != nil {
			return err
		}
		payload, err := readPayload(cmd, args[1])
		if err != nil {
			return err
		}

		return withService(cmd, func(ctx context.Context, svc *ixf.Service) error {
			report, err := svc.Import(ctx, lanID, payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d entries, %d invalid\n", report.RunID, report.Entries, report.Invalid)
			fmt.Fprintf(out, "applied %d, staged %d, conflicts %d, resolved %d, skipped %d\n",
				report.Applied, report.Staged, report.Conflicts, report.Resolved, report.Skipped)
			if report.ImportLogID != 0 {
				fmt.Fprintf(out, "import log %d\n", report.ImportLogID)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return payload, nil
}
