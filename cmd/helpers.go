package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/apperrors"
	cfgpkg "github.com/KaramelBytes/govai/internal/config"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/insight"
	"github.com/KaramelBytes/govai/internal/logging"
	"github.com/KaramelBytes/govai/internal/pipeline"
	"github.com/KaramelBytes/govai/internal/utils"
)

// inputOptions are the dataset flags shared by profile, normalize and
// insights.
type inputOptions struct {
	Delimiter  string
	Sheet      string
	SheetIndex int
	MaxRows    int
	DSN        string
	Query      string
}

// selectModel picks the explicit model, then the configured one when it
// belongs to the configured provider, then the provider default.
func selectModel(c *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c == nil {
		return ai.DefaultModel("")
	}
	if c.Model != "" {
		if mi, ok := ai.LookupModel(c.Model); !ok || mi.Provider == "" || mi.Provider == c.Provider {
			return c.Model
		}
	}
	if m := ai.DefaultModel(c.Provider); m != "" {
		return m
	}
	return c.Model
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "tab", "\\t":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s (use ','|';'|'tab'|'pipe')", s)
}

// loadInput reads the datasets named by paths (merged by header union when
// there are several) or, with --dsn, the result of --query.
func loadInput(ctx context.Context, paths []string, opts inputOptions) (*dataset.Dataset, error) {
	if opts.DSN != "" {
		if len(paths) > 0 {
			return nil, errors.New("pass either files or --dsn, not both")
		}
		if strings.TrimSpace(opts.Query) == "" {
			return nil, errors.New("--query is required with --dsn")
		}
		ds, err := dataset.LoadSQL(ctx, opts.DSN, opts.Query)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", logging.SanitizeConnectionString(opts.DSN), err)
		}
		return ds, nil
	}
	if len(paths) == 0 {
		return nil, errors.New("at least one input file is required")
	}
	delim, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}
	lo := dataset.Options{Delimiter: delim, Sheet: opts.Sheet, SheetIndex: opts.SheetIndex, MaxRows: opts.MaxRows}
	parts := make([]*dataset.Dataset, 0, len(paths))
	for _, p := range paths {
		ds, err := dataset.LoadFile(p, lo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		logger.Debug("loaded dataset", zap.String("file", p), zap.Int("rows", ds.Len()), zap.Int("columns", ds.Width()))
		parts = append(parts, ds)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return dataset.Merge(parts[0].Name(), "source", parts...)
}

// newSession builds the configured runtime and a pipeline session on it.
func newSession(c *cfgpkg.Global) (*pipeline.Session, error) {
	rt, err := pipeline.RuntimeFromGlobal(c)
	if err != nil {
		return nil, err
	}
	return pipeline.NewSession(rt, pipeline.FromGlobal(c), logger)
}

// requireConfig returns the loaded config or the error that prevented it.
func requireConfig() (*cfgpkg.Global, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("config: %w", cfgErr)
	}
	if cfg == nil {
		return nil, errors.New("no config loaded")
	}
	return cfg, nil
}

// estimateCost prices one request with the model catalog. ok is false for
// models without pricing.
func estimateCost(model string, req *insight.Request, maxTokens int) (promptTokens int, usd float64, ok bool) {
	promptTokens = utils.MessageTokens(req.System, req.Prompt)
	usd, ok = ai.EstimateCostUSD(model, promptTokens, maxTokens)
	return promptTokens, usd, ok
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// writeOutput writes content to path atomically, or to w when path is empty.
func writeOutput(w io.Writer, path string, content []byte) error {
	if path == "" {
		if w == nil {
			w = os.Stdout
		}
		_, err := w.Write(content)
		return err
	}
	if err := utils.SafeWriteFile(path, content); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	return nil
}

// render encodes v as JSON or calls markdown for the Markdown format.
func render(format string, v any, markdown func() string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return utils.PrettyJSON(v)
	case "", "markdown", "md":
		return []byte(markdown()), nil
	}
	return nil, fmt.Errorf("unsupported --format: %s (use json|markdown)", format)
}

// describe prefixes pipeline errors with their stage and retryability and
// strips secrets.
func describe(err error) string {
	var staged apperrors.Staged
	if errors.As(err, &staged) {
		return logging.SanitizeText(apperrors.Describe(err))
	}
	return logging.SanitizeError(err)
}
