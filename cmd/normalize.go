package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/normalize"
	"github.com/KaramelBytes/govai/internal/utils"
)

var (
	normInput     inputOptions
	normColumn    string
	normThreshold float64
	normOutput    string
	normFormat    string
	normApply     string
	normClean     bool
)

type normalizeOutput struct {
	Column     string               `json:"column"`
	Threshold  float64              `json:"threshold"`
	Categories []normalize.Category `json:"categories"`
	Mapping    map[string]string    `json:"mapping"`
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [files...] --column C",
	Short: "Group inconsistent category labels into canonical categories",
	Example: `  govai normalize deaths.csv --column disease
  govai normalize a.csv b.csv --column ward --threshold 90 --format json
  govai normalize deaths.csv --column disease --apply cleaned.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(normColumn) == "" {
			return fmt.Errorf("--column is required")
		}
		ds, err := loadInput(cmd.Context(), args, normInput)
		if err != nil {
			return err
		}
		var threshold float64 = normalize.DefaultThreshold
		if cfg != nil && cfg.SimilarityThreshold > 0 {
			threshold = cfg.SimilarityThreshold
		}
		if cmd.Flags().Changed("threshold") {
			threshold = normThreshold
		}
		n, err := normalize.New(threshold, logger)
		if err != nil {
			return err
		}
		column, err := ds.ColumnName(normColumn)
		if err != nil {
			return err
		}
		mapping, set, err := n.NormalizeColumn(ds, column, nil)
		if err != nil {
			return err
		}

		if normApply != "" {
			cleaned, err := normalize.Apply(ds, column, mapping, normalize.ApplyOptions{CleanLabels: normClean})
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := dataset.WriteCSV(&buf, cleaned); err != nil {
				return err
			}
			if err := utils.SafeWriteFile(normApply, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote normalized dataset to %s\n", normApply)
		}

		out := normalizeOutput{Column: column, Threshold: threshold, Categories: set.Categories(), Mapping: mapping.Labels()}
		data, err := render(normFormat, out, out.markdown)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), normOutput, data)
	},
}

func (o normalizeOutput) markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Categories: %s\n\n%d categories at similarity threshold %.0f.\n\n", o.Column, len(o.Categories), o.Threshold)
	b.WriteString("| Label | Variants |\n|---|---|\n")
	for _, c := range o.Categories {
		vs := make([]string, 0, len(c.Variants))
		for _, v := range c.Variants {
			if v.Value == c.Label {
				vs = append(vs, v.Value)
				continue
			}
			vs = append(vs, fmt.Sprintf("%s (%.0f)", v.Value, v.Score))
		}
		fmt.Fprintf(&b, "| %s | %s |\n", c.Label, strings.Join(vs, ", "))
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	addInputFlags(normalizeCmd, &normInput)
	normalizeCmd.Flags().StringVarP(&normColumn, "column", "c", "", "categorical column to normalize")
	normalizeCmd.Flags().Float64Var(&normThreshold, "threshold", normalize.DefaultThreshold, "similarity threshold 0-100 (overrides config)")
	normalizeCmd.Flags().StringVarP(&normOutput, "output", "o", "", "write the category table to a file instead of stdout")
	normalizeCmd.Flags().StringVar(&normFormat, "format", "markdown", "output format: markdown|json")
	normalizeCmd.Flags().StringVar(&normApply, "apply", "", "also write the dataset with the column replaced by canonical labels (CSV)")
	normalizeCmd.Flags().BoolVar(&normClean, "clean-labels", false, "with --apply, also tidy label case and spacing")
}
