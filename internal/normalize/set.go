package normalize

import "strconv"

// Set is an ordered collection of categories. A Set returned by
// Normalize is never modified afterwards; extend it by passing it back
// to Normalize, which returns a new Set.
type Set struct {
	cats        []Category
	keys        [][]string // comparison keys: label first, then variants
	index       map[string]int
	labels      map[string]int
	unspecified int
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{index: map[string]int{}, labels: map[string]int{}, unspecified: -1}
}

// SetFromCategories rebuilds a Set from previously exported categories,
// for example a session restored from JSON. Later duplicates of a raw
// value are ignored.
func SetFromCategories(cats []Category) *Set {
	s := NewSet()
	for _, c := range cats {
		idx := s.ensure(c.Label)
		for _, v := range c.Variants {
			if _, dup := s.index[v.Value]; dup {
				continue
			}
			s.addVariant(idx, v.Value, v.Score)
		}
	}
	return s
}

// Clone returns a deep copy. A nil receiver yields an empty Set.
func (s *Set) Clone() *Set {
	out := NewSet()
	if s == nil {
		return out
	}
	out.cats = make([]Category, len(s.cats))
	out.keys = make([][]string, len(s.keys))
	for i, c := range s.cats {
		out.cats[i] = c.clone()
		out.keys[i] = append([]string(nil), s.keys[i]...)
	}
	for k, v := range s.index {
		out.index[k] = v
	}
	for k, v := range s.labels {
		out.labels[k] = v
	}
	out.unspecified = s.unspecified
	return out
}

// Len returns the number of categories.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cats)
}

// Categories returns copies of every category in creation order.
func (s *Set) Categories() []Category {
	if s == nil {
		return nil
	}
	out := make([]Category, len(s.cats))
	for i, c := range s.cats {
		out[i] = c.clone()
	}
	return out
}

// Lookup returns the category a raw value was assigned to.
func (s *Set) Lookup(raw string) (Category, bool) {
	if s == nil {
		return Category{}, false
	}
	idx, ok := s.index[raw]
	if !ok {
		return Category{}, false
	}
	return s.cats[idx].clone(), true
}

// Category returns the category with the given label.
func (s *Set) Category(label string) (Category, bool) {
	if s == nil {
		return Category{}, false
	}
	idx, ok := s.labels[label]
	if !ok {
		return Category{}, false
	}
	return s.cats[idx].clone(), true
}

// ensure returns the index of the category labelled label, creating it
// without variants when absent.
func (s *Set) ensure(label string) int {
	if idx, ok := s.labels[label]; ok {
		return idx
	}
	idx := len(s.cats)
	s.cats = append(s.cats, Category{Label: label})
	s.keys = append(s.keys, []string{Key(label)})
	s.labels[label] = idx
	if label == UnspecifiedLabel {
		s.unspecified = idx
	}
	return idx
}

// create starts a new singleton category for raw. A raw value colliding
// with an existing label (possible only for Unspecified) gets a suffix.
func (s *Set) create(raw string) int {
	label := raw
	for i := 2; ; i++ {
		if _, taken := s.labels[label]; !taken {
			break
		}
		label = raw + " (" + strconv.Itoa(i) + ")"
	}
	idx := s.ensure(label)
	s.addVariant(idx, raw, 100)
	return idx
}

func (s *Set) addVariant(idx int, raw string, score float64) {
	s.cats[idx].Variants = append(s.cats[idx].Variants, Variant{Value: raw, Score: score})
	s.keys[idx] = append(s.keys[idx], Key(raw))
	s.index[raw] = idx
}
