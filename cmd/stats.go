package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show review statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		summary, err := a.stats.Summary(ctx, time.Now().Add(-since))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Users:       %d (%d active in the last %s)\n", summary.Users, summary.ActiveUsers, since)
		fmt.Fprintf(out, "Concepts:    %d in %d categories\n", summary.Concepts, summary.Categories)
		fmt.Fprintf(out, "Attempts:    %d (%.1f%% correct)\n", summary.TotalAttempts, summary.Accuracy())

		if userID == 0 {
			return nil
		}

		svc, err := a.reviewService("", nil)
		if err != nil {
			return err
		}
		userStats, err := svc.Stats(ctx, userID)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nUser %d\n%s\n", userID, strings.Repeat("─", 40))
		fmt.Fprintf(out, "Reviewed:    %d of %d concepts\n", userStats.Attempted, userStats.TotalConcepts)
		fmt.Fprintf(out, "Due now:     %d\n", userStats.Due)
		fmt.Fprintf(out, "Accuracy:    %.1f%% (%d/%d)\n", userStats.Accuracy, userStats.CorrectAttempts, userStats.TotalAttempts)
		for _, g := range userStats.Groups {
			fmt.Fprintf(out, "  %-24s %d/%d batches\n", g.GroupKey, g.Completed, g.Total)
		}

		weakest, err := a.stats.WeakestConcepts(ctx, userID, limit)
		if err != nil {
			return err
		}
		if len(weakest) > 0 {
			fmt.Fprintln(out, "\nWeakest concepts:")
			for _, w := range weakest {
				fmt.Fprintf(out, "  %5.1f%%  %-3d  %s\n", w.Accuracy, w.TotalAttempts, w.Text)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Int64("user", 0, "Also show the progress of this user")
	statsCmd.Flags().Duration("since", 7*24*time.Hour, "Window for counting active users")
	statsCmd.Flags().Int("limit", 5, "Number of weakest concepts to show")
}
