package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/govai/internal/dataset"
)

var (
	mergeInput  inputOptions
	mergeOutput string
	mergeSource string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <files...> -o out.csv",
	Short: "Merge datasets by header union into one CSV",
	Example: `  govai merge jan.csv feb.csv mar.xlsx -o q1.csv
  govai merge north.csv south.csv --source-column region -o all.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if mergeOutput == "" {
			return fmt.Errorf("--output is required")
		}
		delim, err := parseDelimiter(mergeInput.Delimiter)
		if err != nil {
			return err
		}
		lo := dataset.Options{Delimiter: delim, Sheet: mergeInput.Sheet, SheetIndex: mergeInput.SheetIndex, MaxRows: mergeInput.MaxRows}
		parts := make([]*dataset.Dataset, 0, len(args))
		for _, p := range args {
			ds, err := dataset.LoadFile(p, lo)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			parts = append(parts, ds)
		}
		merged, err := dataset.Merge("merged", mergeSource, parts...)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, merged); err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), mergeOutput, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Merged %d files: %d rows, %d columns\n", len(parts), merged.Len(), merged.Width())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "path of the merged CSV")
	mergeCmd.Flags().StringVar(&mergeSource, "source-column", "source", "column recording each row's file (empty to omit)")
	mergeCmd.Flags().StringVar(&mergeInput.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (sniffed if omitted)")
	mergeCmd.Flags().StringVar(&mergeInput.Sheet, "sheet-name", "", "XLSX: sheet name")
	mergeCmd.Flags().IntVar(&mergeInput.SheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index")
	mergeCmd.Flags().IntVar(&mergeInput.MaxRows, "max-rows", 0, "maximum rows to read per file (0 = unlimited)")
}
