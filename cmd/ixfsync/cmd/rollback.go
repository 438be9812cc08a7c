package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
)

var force bool

var rollbackCmd = &cobra.Command{
	Use:   "rollback <import-log-id>",
	Short: "Revert the changes of an import",
	Long: `Rollback restores every session of an import log to its state before the
import. Sessions changed since are skipped. Sessions whose addresses were taken
by another session meanwhile are only restored with --force, without the
taken addresses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("import log id", args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *ixf.Service) error {
			result, err := svc.Rollback(ctx, id, force, user)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range result.Outcomes {
				verdict := "skipped"
				switch {
				case o.Deleted:
					verdict = "deleted"
				case o.Reverted:
					verdict = "reverted"
				}
				line := fmt.Sprintf("session %d: %s, %s", o.Entry.SessionID, o.Status, verdict)
				if o.Note != "" {
					line += " (" + o.Note + ")"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "reverted %d, skipped %d\n", result.Reverted(), result.Skipped())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVarP(&force, "force", "f", false, "restore sessions whose addresses were taken meanwhile")
}
