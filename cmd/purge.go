package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all concepts, and optionally all review progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		withProgress, _ := cmd.Flags().GetBool("progress")
		userID, _ := cmd.Flags().GetInt64("user")
		if !yes {
			return errors.New("purge deletes data permanently; rerun with --yes to confirm")
		}

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if userID != 0 {
			if err := a.progress.DeleteUser(ctx, userID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted progress of user %d.\n", userID)
			return nil
		}

		n, err := a.concepts.DeleteAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d concepts.\n", n)

		if withProgress {
			if err := a.progress.DeleteAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Deleted all review progress.")
		}
		return nil
	},
}

func init() {
	purgeCmd.Flags().Bool("yes", false, "Confirm the deletion")
	purgeCmd.Flags().Bool("progress", false, "Also delete the review progress of every user")
	purgeCmd.Flags().Int64("user", 0, "Only delete the review progress of this user")
}
