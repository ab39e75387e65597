package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog, recommendations and pricing",
	Example: `  govai models show --for gemini
  govai models recommend --for anthropic --tier cheap
  govai models cost --model-name gpt-4o-mini --prompt-tokens 3000 --completion-tokens 800
  govai models sync --file ./models.json`,
}

var (
	showProvider string
	showJSON     bool
)

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []ai.ModelInfo
		for _, mi := range ai.Catalog() {
			if showProvider == "" || strings.EqualFold(mi.Provider, showProvider) {
				list = append(list, mi)
			}
		}
		if showJSON {
			b, err := utils.PrettyJSON(list)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONTEXT\tIN $/1K\tOUT $/1K")
		for _, mi := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.5f\t%.5f\n", mi.Provider, mi.Name, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		return tw.Flush()
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Validate a JSON catalog file and merge it for this run",
	Long: `Loads a JSON object of model entries and merges it into the in-memory
catalog. Set models_catalog in the config to apply it on every run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.MergeCatalog(m)
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d models from %s\n", len(m), syncPath)
		return nil
	},
}

var (
	recProvider string
	recTier     string
)

var modelsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a model for a provider and tier (cheap|balanced|high-context)",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := recProvider
		if provider == "" && cfg != nil {
			provider = cfg.Provider
		}
		name, ok := ai.RecommendModel(provider, recTier)
		if !ok {
			return fmt.Errorf("no recommendation for provider %q tier %q", provider, recTier)
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

var (
	costModel      string
	costPrompt     int
	costCompletion int
)

var modelsCostCmd = &cobra.Command{
	Use:   "cost",
	Short: "Estimate the USD cost of a request",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := costModel
		if model == "" && cfg != nil {
			model = cfg.Model
		}
		usd, ok := ai.EstimateCostUSD(model, costPrompt, costCompletion)
		if !ok {
			return fmt.Errorf("no pricing for model %q", model)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ~$%.4f for %d prompt + %d completion tokens\n", model, usd, costPrompt, costCompletion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsRecommendCmd)
	modelsCmd.AddCommand(modelsCostCmd)

	modelsShowCmd.Flags().StringVar(&showProvider, "for", "", "only list models of this provider")
	modelsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print JSON instead of a table")
	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsRecommendCmd.Flags().StringVar(&recProvider, "for", "", "provider (default: configured provider)")
	modelsRecommendCmd.Flags().StringVar(&recTier, "tier", "balanced", "cheap|balanced|high-context")
	modelsCostCmd.Flags().StringVar(&costModel, "model-name", "", "model (default: configured model)")
	modelsCostCmd.Flags().IntVar(&costPrompt, "prompt-tokens", 0, "prompt tokens")
	modelsCostCmd.Flags().IntVar(&costCompletion, "completion-tokens", 0, "completion tokens")
}
