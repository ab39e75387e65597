package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
)

// AbbreviationScore is awarded when one key abbreviates the other.
const AbbreviationScore = 90

var bracketed = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

// Key is the comparison form of a label: lowercased, bracketed
// qualifiers removed (unless nothing else remains), every non letter/digit
// rune turned into a space, whitespace collapsed.
func Key(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if stripped := bracketed.ReplaceAllString(s, " "); strings.TrimSpace(stripped) != "" {
		s = stripped
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity scores two raw labels on a 0..100 scale.
func Similarity(a, b string) float64 {
	return keySimilarity(Key(a), Key(b))
}

// keySimilarity is max(token-sort ratio, abbreviation score) on keys.
func keySimilarity(a, b string) float64 {
	if a == b {
		return 100
	}
	score := tokenSortRatio(a, b)
	if abbreviates(a, b) || abbreviates(b, a) {
		if score < AbbreviationScore {
			score = AbbreviationScore
		}
	}
	return score
}

// tokenSortRatio sorts the tokens of each key and computes
// 100*(1 - indel/(len(a)+len(b))), indel being the insert/delete edit
// distance (substitution costs 2).
func tokenSortRatio(a, b string) float64 {
	sa, sb := sortTokens(a), sortTokens(b)
	total := len(sa) + len(sb)
	if total == 0 {
		return 100
	}
	indel := smetrics.WagnerFischer(sa, sb, 1, 1, 2)
	return 100 * (1 - float64(indel)/float64(total))
}

func sortTokens(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

// abbreviates reports whether short is an abbreviation of long: a single
// 2..5 rune token equal to the initials of long's tokens, or a consonant
// skeleton of a single-token long. A skeleton shares the first letter, is
// at most half as long, and every later letter matches a consonant that
// opens a syllable (is followed by a vowel) in long, as in "tb" for
// "tuberculosis" but not "ms" for "measles".
func abbreviates(short, long string) bool {
	sr := []rune(short)
	if len(sr) < 2 || len(sr) > 5 || strings.Contains(short, " ") {
		return false
	}
	lr := []rune(long)
	if len(lr) <= len(sr) {
		return false
	}
	tokens := strings.Fields(long)
	if len(tokens) > 1 {
		if len(tokens) != len(sr) {
			return false
		}
		for i, tok := range tokens {
			if []rune(tok)[0] != sr[i] {
				return false
			}
		}
		return true
	}
	if sr[0] != lr[0] || len(lr) < 2*len(sr) {
		return false
	}
	for _, r := range sr {
		if !unicode.IsLetter(r) || isVowel(r) {
			return false
		}
	}
	j := 1
	for i := 1; i < len(lr)-1 && j < len(sr); i++ {
		if lr[i] == sr[j] && isVowel(lr[i+1]) {
			j++
		}
	}
	return j == len(sr)
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiouy", unicode.ToLower(r))
}
