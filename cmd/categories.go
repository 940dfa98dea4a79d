package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List concept categories in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		categories, err := a.concepts.Categories(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(categories) == 0 {
			fmt.Fprintln(out, "No categories found.")
			return nil
		}
		for _, c := range categories {
			fmt.Fprintln(out, c)
		}

		total, err := a.concepts.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d concepts in %d categories\n", total, len(categories))
		return nil
	},
}
