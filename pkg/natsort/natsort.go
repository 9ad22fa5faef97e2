// Package natsort implements the mixed alphanumeric ordering used by the
// results table: "item2" sorts before "item10".
//
// Text is split into alternating runs of digits and non-digits. Runs are
// compared pairwise; two digit runs compare as integers of arbitrary size,
// anything else compares with a locale-aware collator. The first unequal run
// decides. When one run sequence is a prefix of the other, the shorter sorts
// first.
package natsort

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// collators are not safe for concurrent use; pool them per goroutine.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.English)
	},
}

// Split breaks s into maximal runs of ASCII digits and non-digits.
func Split(s string) []string {
	if s == "" {
		return nil
	}
	var runs []string
	start := 0
	digit := isDigit(s[0])
	for i := 1; i < len(s); i++ {
		if d := isDigit(s[i]); d != digit {
			runs = append(runs, s[start:i])
			start = i
			digit = d
		}
	}
	return append(runs, s[start:])
}

// Compare returns -1, 0 or +1 ordering a before, equal to, or after b in
// ascending mixed order. Both inputs are trimmed first.
func Compare(a, b string) int {
	ar := Split(strings.TrimSpace(a))
	br := Split(strings.TrimSpace(b))

	var col *collate.Collator
	defer func() {
		if col != nil {
			collators.Put(col)
		}
	}()

	for i := 0; i < len(ar) && i < len(br); i++ {
		x, y := ar[i], br[i]
		if isNumeric(x) && isNumeric(y) {
			if c := compareDigits(x, y); c != 0 {
				return c
			}
			continue
		}
		if x == y {
			continue
		}
		if col == nil {
			col = collators.Get().(*collate.Collator)
		}
		if c := col.CompareString(x, y); c != 0 {
			return c
		}
	}

	switch {
	case len(ar) < len(br):
		return -1
	case len(ar) > len(br):
		return 1
	default:
		return 0
	}
}

// CompareDir is Compare with the result flipped when ascending is false.
func CompareDir(a, b string, ascending bool) int {
	c := Compare(a, b)
	if !ascending {
		return -c
	}
	return c
}

// compareDigits compares two digit runs numerically without parsing, so runs
// longer than an int64 still order correctly.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

func isNumeric(run string) bool {
	return run != "" && isDigit(run[0])
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
