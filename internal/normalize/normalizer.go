// Package normalize clusters noisy categorical labels into canonical
// categories using approximate string matching.
//
// Each new distinct value is compared against every recorded variant of
// every existing category, so a call costs O(n·m) comparisons for n new
// values and m known variants. That is fine for the hundreds to low
// thousands of labels civic datasets carry; there is no index.
package normalize

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultThreshold is the minimum similarity for joining a category.
const DefaultThreshold = 85

// UnspecifiedLabel is the category for empty and whitespace-only values.
const UnspecifiedLabel = "Unspecified"

var unspecifiedKey = Key(UnspecifiedLabel)

// Variant is one raw spelling of a category and its similarity to the
// category at the time it joined.
type Variant struct {
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// Category is a canonical label and the raw variants mapped to it.
type Category struct {
	Label    string    `json:"label"`
	Variants []Variant `json:"variants"`
}

func (c Category) clone() Category {
	v := make([]Variant, len(c.Variants))
	copy(v, c.Variants)
	return Category{Label: c.Label, Variants: v}
}

// Values returns the raw variant strings.
func (c Category) Values() []string {
	out := make([]string, len(c.Variants))
	for i, v := range c.Variants {
		out[i] = v.Value
	}
	return out
}

// Mapping maps each raw value to its category.
type Mapping map[string]Category

// Labels maps each raw value to its canonical label.
func (m Mapping) Labels() map[string]string {
	out := make(map[string]string, len(m))
	for raw, c := range m {
		out[raw] = c.Label
	}
	return out
}

// Normalizer assigns raw values to canonical categories. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	threshold float64
	logger    *zap.Logger
}

// New returns a Normalizer. threshold is on a 0..100 scale.
func New(threshold float64, logger *zap.Logger) (*Normalizer, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("similarity threshold must be within 0..100, got %v", threshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{threshold: threshold, logger: logger.Named("normalizer")}, nil
}

// Threshold returns the configured similarity threshold.
func (n *Normalizer) Threshold() float64 { return n.threshold }

// Normalize maps values onto existing (which may be nil) and returns the
// mapping for every distinct value plus the extended category set.
// existing is never modified. Values already recorded as variants keep
// their category; new values are evaluated in first-appearance order.
func (n *Normalizer) Normalize(values []string, existing *Set) (Mapping, *Set, error) {
	set := existing.Clone()
	mapping := make(Mapping)
	if len(values) == 0 {
		return mapping, set, nil
	}

	var created, joined int
	touched := map[int]struct{}{}
	seen := make(map[string]struct{}, len(values))
	order := make([]string, 0, len(values))
	for _, raw := range values {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		order = append(order, raw)

		if idx, ok := set.index[raw]; ok {
			touched[idx] = struct{}{}
			continue
		}
		if strings.TrimSpace(raw) == "" {
			idx := set.ensure(UnspecifiedLabel)
			set.addVariant(idx, raw, 100)
			touched[idx] = struct{}{}
			continue
		}
		key := Key(raw)
		if key == "" || key == unspecifiedKey {
			idx := set.ensure(UnspecifiedLabel)
			set.addVariant(idx, raw, 100)
			touched[idx] = struct{}{}
			continue
		}

		idx, score := n.best(set, key)
		if idx >= 0 && score >= n.threshold {
			set.addVariant(idx, raw, score)
			joined++
			n.logger.Debug("variant joined category",
				zap.String("value", raw),
				zap.String("category", set.cats[idx].Label),
				zap.Float64("score", score))
		} else {
			idx = set.create(raw)
			created++
		}
		touched[idx] = struct{}{}
	}

	// Snapshot after all additions so every mapped category carries its
	// final variant list for this call.
	snap := make(map[int]Category, len(touched))
	for idx := range touched {
		snap[idx] = set.cats[idx].clone()
	}
	for _, raw := range order {
		mapping[raw] = snap[set.index[raw]]
	}
	n.logger.Debug("normalized values",
		zap.Int("distinct", len(order)),
		zap.Int("joined", joined),
		zap.Int("created", created),
		zap.Int("categories", set.Len()))
	return mapping, set, nil
}

// best returns the highest scoring category for key. Ties prefer more
// variants, then the lexicographically smaller label. The Unspecified
// category never takes part in fuzzy matching.
func (n *Normalizer) best(set *Set, key string) (int, float64) {
	bestIdx, bestScore := -1, -1.0
	for i := range set.cats {
		if set.unspecified == i {
			continue
		}
		score := -1.0
		for _, vk := range set.keys[i] {
			if s := keySimilarity(key, vk); s > score {
				score = s
			}
			if score == 100 {
				break
			}
		}
		if bestIdx < 0 || score > bestScore {
			bestIdx, bestScore = i, score
			continue
		}
		if score == bestScore {
			cur, cand := set.cats[bestIdx], set.cats[i]
			if len(cand.Variants) > len(cur.Variants) ||
				(len(cand.Variants) == len(cur.Variants) && cand.Label < cur.Label) {
				bestIdx = i
			}
		}
	}
	return bestIdx, bestScore
}
