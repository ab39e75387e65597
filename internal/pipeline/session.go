// Package pipeline runs a dataset through profiling, normalization,
// aggregation, request building, orchestration and parsing for one
// session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/ai"
	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/insight"
	"github.com/KaramelBytes/govai/internal/normalize"
	"github.com/KaramelBytes/govai/internal/orchestrator"
	"github.com/KaramelBytes/govai/internal/profile"
)

// Session owns the state of one analysis session: category sets per
// column, the orchestrator with its cache and limiter. Sessions share
// nothing with each other.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg        Config
	logger     *zap.Logger
	normalizer *normalize.Normalizer
	builder    *insight.Builder
	orch       *orchestrator.Orchestrator

	mu   sync.Mutex
	sets map[string]*normalize.Set
}

// NewSession builds a session around rt. Extra options are passed to the
// orchestrator.
func NewSession(rt ai.Runtime, cfg Config, logger *zap.Logger, opts ...orchestrator.Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.Named("pipeline").With(zap.String("session", id))
	if cfg.Threshold == 0 {
		cfg.Threshold = normalize.DefaultThreshold
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	n, err := normalize.New(cfg.Threshold, logger)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(rt, cfg.Orchestrator, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		cfg:        cfg,
		logger:     logger,
		normalizer: n,
		builder:    insight.NewBuilder(cfg.Builder),
		orch:       orch,
		sets:       map[string]*normalize.Set{},
	}, nil
}

// Input describes one analysis run.
type Input struct {
	Dataset *dataset.Dataset
	// CategoryColumn defaults to the first categorical column.
	CategoryColumn string
	// Measures default to every numeric column.
	Measures    []string
	TimeColumn  string
	Granularity aggregate.Granularity
	Aggregation aggregate.Kind
	Lenient     bool
	// Intents are analysed concurrently; empty means one default intent.
	Intents []string
}

// Insight is the outcome for one intent.
type Insight struct {
	Intent      string          `json:"intent"`
	Fingerprint string          `json:"fingerprint"`
	Attempts    int             `json:"attempts"`
	CacheHit    bool            `json:"cache_hit"`
	Regenerated bool            `json:"regenerated,omitempty"`
	Merged      int             `json:"merged_rows,omitempty"`
	Record      *insight.Record `json:"record"`
}

// Result is everything a run produced, with insights in intent order.
type Result struct {
	SessionID      string                           `json:"session_id"`
	Dataset        string                           `json:"dataset"`
	Rows           int                              `json:"rows"`
	Profiles       map[string]profile.ColumnProfile `json:"profiles"`
	CategoryColumn string                           `json:"category_column"`
	Categories     []normalize.Category             `json:"categories"`
	Metrics        []aggregate.Metric               `json:"metrics"`
	Notes          []string                         `json:"notes,omitempty"`
	Insights       []Insight                        `json:"insights"`
}

// Profile classifies the columns of ds and renders the dataset report.
func (s *Session) Profile(ds *dataset.Dataset) (map[string]profile.ColumnProfile, *profile.Report, error) {
	ps, err := profile.Profile(ds, s.cfg.Profile)
	if err != nil {
		return nil, nil, err
	}
	return ps, profile.BuildReport(ds, ps, profile.DefaultReportOptions()), nil
}

// Normalize maps the values of column onto the session's category set for
// that column and stores the grown set.
func (s *Session) Normalize(ds *dataset.Dataset, column string) (normalize.Mapping, []normalize.Category, error) {
	name, err := ds.ColumnName(column)
	if err != nil {
		return nil, nil, err
	}
	key := strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, set, err := s.normalizer.NormalizeColumn(ds, name, s.sets[key])
	if err != nil {
		return nil, nil, err
	}
	s.sets[key] = set
	return mapping, set.Categories(), nil
}

// Prepared is a dataset that has been profiled, normalized and
// aggregated but not yet sent anywhere.
type Prepared struct {
	Profiles       map[string]profile.ColumnProfile
	CategoryColumn string
	Categories     []normalize.Category
	Aggregate      *aggregate.Result
}

// Prepare runs every stage before the AI boundary. Missing column choices
// are filled from the profile: the first categorical column and every
// numeric column other than the time column and year-like columns.
func (s *Session) Prepare(in Input) (*Prepared, error) {
	ds := in.Dataset
	ps, err := profile.Profile(ds, s.cfg.Profile)
	if err != nil {
		return nil, err
	}

	catCol := in.CategoryColumn
	if catCol == "" {
		cats := profile.Columns(ds, ps, profile.RoleCategorical)
		if len(cats) == 0 {
			return nil, apperrors.NewSchemaError(apperrors.StageProfile, "no categorical column found in %s; pass one explicitly", ds.Name())
		}
		catCol = cats[0]
	}
	measures := in.Measures
	if len(measures) == 0 {
		for _, c := range profile.Columns(ds, ps, profile.RoleNumeric) {
			if strings.EqualFold(c, in.TimeColumn) || yearLike(ds, c) {
				continue
			}
			measures = append(measures, c)
		}
	}

	mapping, categories, err := s.Normalize(ds, catCol)
	if err != nil {
		return nil, err
	}
	agg, err := aggregate.Compute(ds, mapping, aggregate.Spec{
		CategoryColumn: catCol,
		Measures:       measures,
		Aggregation:    in.Aggregation,
		TimeColumn:     in.TimeColumn,
		Granularity:    in.Granularity,
		Lenient:        in.Lenient,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("dataset prepared",
		zap.String("dataset", ds.Name()),
		zap.Int("rows", ds.Len()),
		zap.String("category_column", catCol),
		zap.Int("categories", len(categories)),
		zap.Int("metrics", len(agg.Metrics)),
		zap.Int("dropped_cells", agg.Dropped))
	return &Prepared{Profiles: ps, CategoryColumn: catCol, Categories: categories, Aggregate: agg}, nil
}

var yearName = regexp.MustCompile(`(?i)(^(year|yr|fy|period|fiscal[ _]?year)$|[ _]year$)`)

// yearLike reports whether a numeric column holds calendar years rather
// than a measure: its name says so, or every value is an integer in
// 1800..2200.
func yearLike(ds *dataset.Dataset, column string) bool {
	if yearName.MatchString(strings.TrimSpace(column)) {
		return true
	}
	vals, err := ds.Column(column)
	if err != nil {
		return false
	}
	seen := 0
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1800 || n > 2200 {
			return false
		}
		seen++
	}
	return seen > 0
}

// Requests builds the request for each intent without sending it.
func (s *Session) Requests(p *Prepared, intents []string) ([]*insight.Request, error) {
	if len(intents) == 0 {
		intents = []string{""}
	}
	out := make([]*insight.Request, 0, len(intents))
	for _, intent := range intents {
		req, err := s.builder.Build(p.Aggregate.Metrics, intent)
		if err != nil {
			return nil, fmt.Errorf("intent %q: %w", intentLabel(intent), err)
		}
		out = append(out, req)
	}
	return out, nil
}

// Run executes the whole pipeline for in.
func (s *Session) Run(ctx context.Context, in Input) (*Result, error) {
	p, err := s.Prepare(in)
	if err != nil {
		return nil, err
	}
	return s.Analyze(ctx, in, p)
}

// Analyze sends one request per intent of in for the prepared dataset,
// concurrently, and parses the answers.
func (s *Session) Analyze(ctx context.Context, in Input, p *Prepared) (*Result, error) {
	intents := in.Intents
	if len(intents) == 0 {
		intents = []string{""}
	}
	insights := make([]Insight, len(intents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, intent := range intents {
		g.Go(func() error {
			out, err := s.analyze(gctx, p.Aggregate.Metrics, intent)
			if err != nil {
				return fmt.Errorf("intent %q: %w", intentLabel(intent), err)
			}
			insights[i] = *out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		SessionID:      s.ID,
		Dataset:        in.Dataset.Name(),
		Rows:           in.Dataset.Len(),
		Profiles:       p.Profiles,
		CategoryColumn: p.CategoryColumn,
		Categories:     p.Categories,
		Metrics:        p.Aggregate.Metrics,
		Notes:          p.Aggregate.Notes,
		Insights:       insights,
	}, nil
}

// analyze builds, sends and parses one intent. A malformed answer is
// regenerated once with the strict template when enabled.
func (s *Session) analyze(ctx context.Context, metrics []aggregate.Metric, intent string) (*Insight, error) {
	req, err := s.builder.Build(metrics, intent)
	if err != nil {
		return nil, err
	}
	resp, err := s.orch.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &Insight{Intent: req.Intent, Fingerprint: req.Fingerprint, Attempts: resp.Attempts, CacheHit: resp.CacheHit, Merged: req.Merged}
	rec, err := insight.Parse(resp)
	var malformed *apperrors.MalformedInsightError
	if errors.As(err, &malformed) && s.cfg.RegenerateOnMalformed {
		s.logger.Warn("malformed insight, regenerating with strict template",
			zap.String("intent", req.Intent), zap.String("section", malformed.Section))
		strict, berr := s.builder.BuildStrict(metrics, intent)
		if berr != nil {
			return nil, berr
		}
		resp, err = s.orch.Analyze(ctx, strict)
		if err != nil {
			return nil, err
		}
		out.Fingerprint = strict.Fingerprint
		out.Attempts += resp.Attempts
		out.CacheHit = resp.CacheHit
		out.Regenerated = true
		rec, err = insight.Parse(resp)
	}
	if err != nil {
		return nil, err
	}
	out.Record = rec
	return out, nil
}

func intentLabel(intent string) string {
	if strings.TrimSpace(intent) == "" {
		return insight.DefaultIntent
	}
	return intent
}
