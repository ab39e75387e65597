package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/ai"
	cfgpkg "github.com/KaramelBytes/govai/internal/config"
	"github.com/KaramelBytes/govai/internal/logging"
)

var (
	cfgFile string
	debug   bool
	// Provider and model flags override the config file.
	flagProvider   string
	flagModel      string
	flagLogFormat  string
	flagTimeoutSec int
	flagRetryMax   int

	// Loaded configuration and process logger
	cfg    *cfgpkg.Global
	cfgErr error
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "govai",
	Short: "govai: turn civic datasets into AI-written public health insights",
	Long: `govai profiles tabular public health data, normalizes inconsistent category
labels, aggregates the figures and asks an AI model for a short, structured
insight (summary, interpretation, recommendation and severity).`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", describe(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.govai/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "AI provider: gemini|openai|anthropic|openrouter|ollama (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagTimeoutSec, "timeout", 0, "per-attempt request timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMax, "retry-max", 0, "max attempts per request on transient failures (overrides config)")
}

func loadConfig() {
	cfgErr = nil
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: profile, normalize and merge run without config.
		cfgErr = err
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("provider") && flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if f.Changed("timeout") && flagTimeoutSec > 0 {
		cfg.RequestTimeoutSeconds = flagTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMax > 0 {
		cfg.RetryAttempts = flagRetryMax
	}
	if cfg.ModelsCatalog != "" {
		if m, err := ai.LoadCatalogFromJSON(cfg.ModelsCatalog); err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: models catalog: %v\n", err)
		} else {
			ai.MergeCatalog(m)
		}
	}
	cfg.Model = selectModel(cfg, flagModel)

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	l, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; using defaults\n", err)
		l, _ = logging.New("info", "console")
	}
	if l != nil {
		logger = l
	}
}
