package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/insight"
	"github.com/KaramelBytes/govai/internal/pipeline"
)

var (
	insInput        inputOptions
	insCategory     string
	insMeasures     []string
	insTime         string
	insGranularity  string
	insAggregation  string
	insIntents      []string
	insLenient      bool
	insFormat       string
	insOutput       string
	insDryRun       bool
	insPrintPrompt  bool
	insBudgetLimit  float64
	insNoRegenerate bool
)

var insightsCmd = &cobra.Command{
	Use:   "insights [files...]",
	Short: "Profile, normalize, aggregate and ask the AI model for insights",
	Example: `  govai insights deaths.csv --category disease --measure deaths --intent "which diseases drive mortality"
  govai insights jan.csv feb.csv --category ward --measure cases --time date --granularity month --format json -o report.json
  govai insights deaths.csv --dry-run --print-prompt
  govai insights --dsn postgres://user:pass@db/health --query "SELECT * FROM deaths" --category lga`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		agg, err := aggregate.ParseKind(insAggregation)
		if err != nil {
			return err
		}
		gran, err := aggregate.ParseGranularity(insGranularity)
		if err != nil {
			return err
		}
		if insNoRegenerate {
			c.RegenerateOnMalformed = false
		}

		ds, err := loadInput(cmd.Context(), args, insInput)
		if err != nil {
			return err
		}
		in := pipeline.Input{
			Dataset:        ds,
			CategoryColumn: insCategory,
			Measures:       insMeasures,
			TimeColumn:     insTime,
			Granularity:    gran,
			Aggregation:    agg,
			Lenient:        insLenient,
			Intents:        insIntents,
		}

		sess, err := newSession(c)
		if err != nil {
			return err
		}
		prepared, err := sess.Prepare(in)
		if err != nil {
			return err
		}
		reqs, err := sess.Requests(prepared, insIntents)
		if err != nil {
			return err
		}
		total := previewRequests(cmd.ErrOrStderr(), c.Model, c.MaxTokens, reqs, insPrintPrompt)
		if err := enforceBudget(total, insBudgetLimit); err != nil {
			return err
		}
		if insDryRun {
			fmt.Fprintln(cmd.ErrOrStderr(), "Dry run: no request sent.")
			return nil
		}

		logger.Info("requesting insights",
			zap.String("provider", c.Provider),
			zap.String("model", c.Model),
			zap.Int("intents", len(reqs)))
		res, err := sess.Analyze(cmd.Context(), in, prepared)
		if err != nil {
			return err
		}
		out, err := render(insFormat, res, res.Markdown)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), insOutput, out)
	},
}

// previewRequests prints one line per request with its estimated cost and
// returns the total. Unpriced models count as zero.
func previewRequests(w io.Writer, model string, maxTokens int, reqs []*insight.Request, printPrompt bool) float64 {
	if w == nil {
		w = os.Stderr
	}
	var total float64
	for _, r := range reqs {
		tokens, usd, ok := estimateCost(model, r, maxTokens)
		cost := "n/a"
		if ok {
			cost = fmt.Sprintf("~$%.4f", usd)
			total += usd
		}
		line := fmt.Sprintf("• %q: %d rows", r.Intent, len(r.Rows))
		if r.Merged > 0 {
			line += fmt.Sprintf(" (%d merged into %s)", r.Merged, insight.OtherCategory)
		}
		fmt.Fprintf(w, "%s, ~%d prompt tokens, est. cost %s [%s]\n", line, tokens, cost, r.Fingerprint[:12])
		if printPrompt {
			fmt.Fprintf(w, "--- system ---\n%s\n--- prompt ---\n%s\n", r.System, strings.TrimRight(r.Prompt, "\n"))
		}
	}
	return total
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	addInputFlags(insightsCmd, &insInput)
	f := insightsCmd.Flags()
	f.StringVar(&insCategory, "category", "", "categorical column to group by (first categorical column if omitted)")
	f.StringSliceVar(&insMeasures, "measure", nil, "numeric column(s) to aggregate (all numeric columns if omitted)")
	f.StringVar(&insTime, "time", "", "optional date/year column for time buckets")
	f.StringVar(&insGranularity, "granularity", "year", "time bucket: year|month|day")
	f.StringVar(&insAggregation, "aggregation", "sum", "aggregation: sum|mean|count")
	f.StringArrayVar(&insIntents, "intent", nil, "analysis intent (repeatable; each runs concurrently)")
	f.BoolVar(&insLenient, "lenient", false, "extract the first number from dirty measure cells (\"approx. 12\")")
	f.StringVar(&insFormat, "format", "markdown", "output format: markdown|json")
	f.StringVarP(&insOutput, "output", "o", "", "write the result to a file instead of stdout")
	f.BoolVar(&insDryRun, "dry-run", false, "build requests and estimate cost without calling the model")
	f.BoolVar(&insPrintPrompt, "print-prompt", false, "print each request's prompt")
	f.Float64Var(&insBudgetLimit, "budget-limit", 0, "refuse to run when the estimated cost exceeds this many USD")
	f.BoolVar(&insNoRegenerate, "no-regenerate", false, "fail instead of retrying once with a stricter template on malformed answers")
}
