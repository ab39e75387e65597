package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/profile"
)

var (
	profInput  inputOptions
	profOutput string
	profFormat string
	profSample int
	profTopN   int
)

type profileOutput struct {
	Dataset  string                           `json:"dataset"`
	Rows     int                              `json:"rows"`
	Profiles map[string]profile.ColumnProfile `json:"profiles"`
	Report   *profile.Report                  `json:"report"`
}

var profileCmd = &cobra.Command{
	Use:   "profile [files...]",
	Short: "Infer column roles and summarize a dataset",
	Example: `  govai profile deaths.csv
  govai profile clinics.xlsx --sheet-name "2024" --format json
  govai profile --dsn ./surveillance.db --query "SELECT * FROM weekly_cases"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadInput(cmd.Context(), args, profInput)
		if err != nil {
			return err
		}
		return runProfile(cmd, ds)
	},
}

func runProfile(cmd *cobra.Command, ds *dataset.Dataset) error {
	opt := profile.DefaultOptions()
	if cfg != nil {
		opt.SampleSize = cfg.SampleSize
		opt.CategoricalRatio = cfg.CategoricalRatio
	}
	if profSample > 0 {
		opt.SampleSize = profSample
	}
	ps, err := profile.Profile(ds, opt)
	if err != nil {
		return err
	}
	ropt := profile.DefaultReportOptions()
	if profTopN > 0 {
		ropt.TopValues = profTopN
	}
	rep := profile.BuildReport(ds, ps, ropt)
	out, err := render(profFormat, profileOutput{Dataset: ds.Name(), Rows: ds.Len(), Profiles: ps, Report: rep}, rep.Markdown)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), profOutput, out)
}

func addInputFlags(cmd *cobra.Command, o *inputOptions) {
	cmd.Flags().StringVar(&o.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (sniffed if omitted)")
	cmd.Flags().StringVar(&o.Sheet, "sheet-name", "", "XLSX: sheet name")
	cmd.Flags().IntVar(&o.SheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	cmd.Flags().IntVar(&o.MaxRows, "max-rows", 0, "maximum rows to read per file (0 = unlimited)")
	cmd.Flags().StringVar(&o.DSN, "dsn", "", "read from a database instead of files (SQLite path or postgres:// URL)")
	cmd.Flags().StringVar(&o.Query, "query", "", "SQL query to run with --dsn")
}

func init() {
	rootCmd.AddCommand(profileCmd)
	addInputFlags(profileCmd, &profInput)
	profileCmd.Flags().StringVarP(&profOutput, "output", "o", "", "write the report to a file instead of stdout")
	profileCmd.Flags().StringVar(&profFormat, "format", "markdown", "output format: markdown|json")
	profileCmd.Flags().IntVar(&profSample, "sample-size", 0, "values inspected per column (overrides config)")
	profileCmd.Flags().IntVar(&profTopN, "top", 0, "top values listed per categorical column")
}
