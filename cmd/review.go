package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/juliomeza/memory-card/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review <group>",
	Short: "Review the due concepts of a category or level in the terminal",
	Long: "Review the due concepts of a group. With GROUPING=category the group is a category key such as \"1|Networking\"; " +
		"with GROUPING=level it is the level number. Without --user progress is not saved.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		filter, _ := cmd.Flags().GetString("filter")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.reviewService(filter, nil)
		if err != nil {
			return err
		}
		defer svc.Close(context.Background())

		return runReview(cmd.Context(), svc, userID, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	reviewCmd.Flags().Int64("user", review.AnonymousUser, "User whose progress is read and updated")
	reviewCmd.Flags().String("filter", "all", "Which due concepts to review: all, new or incorrect")
}

// terminal reads answers line by line
type terminal struct {
	in  *bufio.Scanner
	out io.Writer
}

func (t *terminal) ask(prompt string) (string, bool) {
	fmt.Fprint(t.out, prompt)
	if !t.in.Scan() {
		fmt.Fprintln(t.out)
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(t.in.Text())), true
}

func runReview(ctx context.Context, svc *review.Service, userID int64, group string, in io.Reader, out io.Writer) error {
	t := &terminal{in: bufio.NewScanner(in), out: out}
	defer svc.End(userID)

	view, err := svc.Begin(ctx, userID, group)
	for {
		if err != nil {
			var perr *review.PersistenceError
			if !errors.As(err, &perr) || view == nil {
				return err
			}
			fmt.Fprintf(out, "warning: %v\n", err)
		}

		switch {
		case view.Empty:
			fmt.Fprintf(out, "Nothing to review in %s.\n", group)
			return nil

		case view.LevelComplete:
			fmt.Fprintf(out, "All due concepts in %s reviewed (%d/%d batches).\n", group, view.Group.Completed, view.Group.Total)
			return nil

		case view.BatchComplete:
			fmt.Fprintf(out, "\n★ Batch %d/%d complete: %s star after %d answers. Progress %d/%d.\n",
				view.BatchIndex+1, view.BatchCount, view.Tier, view.Answered, view.Group.Completed, view.Group.Total)
			if view.HasNextBatch {
				answer, ok := t.ask("Continue with the next batch? [Y/n] ")
				if !ok || answer == "n" || answer == "q" {
					return nil
				}
			}
			view, err = svc.Next(ctx, userID)

		default:
			fmt.Fprintf(out, "\n[batch %d/%d, %d/%d correct, %d left]\n%s\n",
				view.BatchIndex+1, view.BatchCount, view.CorrectCount, view.BatchSize, view.Remaining, view.Concept.Text)
			if answer, ok := t.ask("Press Enter to flip (q to quit) "); !ok || answer == "q" {
				return nil
			}
			fmt.Fprintf(out, "%s\n", view.Concept.Explanation)

			remembered, ok := askRemembered(t)
			if !ok {
				return nil
			}
			view, err = svc.Answer(ctx, userID, remembered)
		}
	}
}

func askRemembered(t *terminal) (bool, bool) {
	for {
		answer, ok := t.ask("Did you remember it? [y/n] ")
		if !ok || answer == "q" {
			return false, false
		}
		switch answer {
		case "y", "yes":
			return true, true
		case "n", "no":
			return false, true
		}
	}
}
