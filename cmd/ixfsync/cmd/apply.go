package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf"
)

var applyCmd = &cobra.Command{
	Use:   "apply <staging-id>",
	Short: "Approve a staged proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("staging id", args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *ixf.Service) error {
			result, err := svc.Apply(ctx, id, user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s applied to session %d\n", result.Action, result.Session.ID)
			return nil
		})
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss <staging-id>",
	Short: "Dismiss a staged proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("staging id", args[0])
		if err != nil {
			return err
		}
		return withService(cmd, func(ctx context.Context, svc *ixf.Service) error {
			if err := svc.Dismiss(ctx, id, user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "proposal %d dismissed\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(dismissCmd)
}
