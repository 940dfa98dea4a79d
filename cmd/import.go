package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juliomeza/memory-card/internal/excel"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import concepts from an XLSX, CSV or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, _ := cmd.Flags().GetString("sheet")
		startRow, _ := cmd.Flags().GetInt("start-row")

		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		config := excel.DefaultImportConfig()
		config.SheetName = sheet
		if startRow > 0 {
			config.StartRow = startRow
		}

		result, err := excel.NewImporter(a.concepts, a.logger).WithConfig(config).ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Processed: %d\nImported:  %d\nSkipped:   %d\n", result.TotalProcessed, result.Imported, result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("sheet", "", "XLSX sheet name (default: first sheet)")
	importCmd.Flags().Int("start-row", 0, "First data row of XLSX/CSV files (default 2)")
}
