package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send due reminders for open proposals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *ixf.Service) error {
			report, err := svc.RemindAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminders sent for %d proposals on %d lans\n",
				report.Sent, report.Checked, report.LANs)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(remindCmd)
}
