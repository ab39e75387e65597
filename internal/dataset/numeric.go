package dataset

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseNumber parses a numeric cell tolerating locale separators,
// percent signs and non-breaking spaces. "1,234.5", "1.234,5", "12%" and
// "1 200" all parse. A single comma followed by exactly three digits is a
// thousands separator; otherwise a lone comma is the decimal mark.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	var dec, thou rune
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0:
		if cpos > dpos {
			dec, thou = ',', '.'
		} else {
			dec, thou = '.', ','
		}
	case cpos >= 0:
		if strings.Count(raw, ",") > 1 || len(raw)-cpos-1 == 3 {
			dec, thou = '.', ','
		} else {
			dec = ','
		}
	case dpos >= 0:
		if strings.Count(raw, ".") > 1 {
			dec, thou = ',', '.'
		} else {
			dec = '.'
		}
	default:
		dec = '.'
	}
	if thou != 0 {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	raw = strings.ReplaceAll(raw, " ", "")
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ExtractNumber pulls the first unsigned number out of a dirty cell such as
// "approx. 120 deaths". It falls back to ParseNumber for clean input.
func ExtractNumber(s string) (float64, bool) {
	if f, ok := ParseNumber(s); ok {
		return f, true
	}
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"2006-01", "Jan 2006", "January 2006", "2 Jan 2006", "02-Jan-2006",
}

var fiscalYear = regexp.MustCompile(`^(\d{4})[-/](\d{2}|\d{4})$`)

// FiscalYear reports whether s is a fiscal period such as "2014-15",
// "2014/15" or "2014-2015": a year followed by the next year, in two or
// four digits. "2019-03" is a month, not a period. The trimmed cell is
// returned unchanged.
func FiscalYear(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := fiscalYear.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	next := start + 1
	if len(m[2]) == 2 {
		next %= 100
	}
	if end != next {
		return "", false
	}
	return s, true
}

// ParseTime tries the common date layouts found in civic exports. A fiscal
// period parses as January 1 of its first year.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if p, ok := FiscalYear(s); ok {
		y, _ := strconv.Atoi(p[:4])
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
