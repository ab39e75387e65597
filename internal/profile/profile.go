// Package profile infers a semantic role for every column of a dataset.
package profile

import (
	"strings"

	"github.com/KaramelBytes/govai/internal/apperrors"
	"github.com/KaramelBytes/govai/internal/dataset"
)

// Role is the inferred semantic role of a column.
type Role string

const (
	RoleCategorical Role = "categorical"
	RoleNumeric     Role = "numeric"
	RoleTemporal    Role = "temporal"
	RoleFreeText    Role = "free-text"
	RoleIdentifier  Role = "identifier"
)

// Options controls profiling.
type Options struct {
	// SampleSize caps the non-missing values inspected per column.
	SampleSize int
	// CategoricalRatio is the distinct/sampled ratio below which a
	// non-numeric column is categorical.
	CategoricalRatio float64
	// ParseThreshold is the fraction of values that must parse for the
	// numeric and temporal roles.
	ParseThreshold float64
}

// DefaultOptions returns SampleSize 1000, CategoricalRatio 0.5 and
// ParseThreshold 0.9.
func DefaultOptions() Options {
	return Options{SampleSize: 1000, CategoricalRatio: 0.5, ParseThreshold: 0.9}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SampleSize <= 0 {
		o.SampleSize = d.SampleSize
	}
	if o.CategoricalRatio <= 0 {
		o.CategoricalRatio = d.CategoricalRatio
	}
	if o.ParseThreshold <= 0 || o.ParseThreshold > 1 {
		o.ParseThreshold = d.ParseThreshold
	}
	return o
}

// ColumnProfile is the inferred role of one column and the sample counts
// behind it.
type ColumnProfile struct {
	Name       string  `json:"name"`
	Role       Role    `json:"role"`
	Confidence float64 `json:"confidence"`
	Sampled    int     `json:"sampled"`
	Missing    int     `json:"missing"`
	Distinct   int     `json:"distinct"`
}

// Profile classifies every column of ds. It fails with a SchemaError when
// ds has no rows or no columns.
func Profile(ds *dataset.Dataset, opt Options) (map[string]ColumnProfile, error) {
	if ds == nil || ds.Width() == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageProfile, "dataset has no columns")
	}
	if ds.Len() == 0 {
		return nil, apperrors.NewSchemaError(apperrors.StageProfile, "dataset %q has no rows", ds.Name())
	}
	opt = opt.withDefaults()
	out := make(map[string]ColumnProfile, ds.Width())
	for _, name := range ds.Columns() {
		values, _ := ds.Column(name)
		out[name] = profileColumn(name, values, opt)
	}
	return out, nil
}

func profileColumn(name string, values []string, opt Options) ColumnProfile {
	p := ColumnProfile{Name: name}
	sample := make([]string, 0, min(len(values), opt.SampleSize))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			p.Missing++
			continue
		}
		if len(sample) < opt.SampleSize {
			sample = append(sample, v)
		}
	}
	p.Sampled = len(sample)
	if p.Sampled == 0 {
		p.Role = RoleFreeText
		return p
	}

	distinct := make(map[string]struct{}, len(sample))
	var numeric, temporal int
	for _, v := range sample {
		distinct[v] = struct{}{}
		if _, ok := dataset.ParseNumber(v); ok {
			numeric++
			continue
		}
		if _, ok := dataset.ParseTime(v); ok {
			temporal++
		}
	}
	p.Distinct = len(distinct)
	n := float64(p.Sampled)
	numFrac := float64(numeric) / n
	timeFrac := float64(temporal) / n
	distinctRatio := float64(p.Distinct) / n

	switch {
	case looksLikeIdentifier(name) && p.Distinct == p.Sampled:
		p.Role, p.Confidence = RoleIdentifier, 1
	case numFrac >= opt.ParseThreshold:
		p.Role, p.Confidence = RoleNumeric, numFrac
	case timeFrac >= opt.ParseThreshold:
		p.Role, p.Confidence = RoleTemporal, timeFrac
	case distinctRatio < opt.CategoricalRatio && numFrac < 0.5:
		p.Role, p.Confidence = RoleCategorical, 1-numFrac
	default:
		p.Role, p.Confidence = RoleFreeText, 1-numFrac-timeFrac
	}
	return p
}

// looksLikeIdentifier matches id, code, uuid and *_id style names.
func looksLikeIdentifier(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "id", "code", "uuid", "guid", "key":
		return true
	}
	return strings.HasSuffix(key, "_id") || strings.HasSuffix(key, "_uuid") || strings.HasSuffix(key, "_code")
}

// Columns returns the names in ps having role r, in dataset column order.
func Columns(ds *dataset.Dataset, ps map[string]ColumnProfile, r Role) []string {
	var out []string
	for _, name := range ds.Columns() {
		if p, ok := ps[name]; ok && p.Role == r {
			out = append(out, name)
		}
	}
	return out
}
