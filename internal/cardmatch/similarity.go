package cardmatch

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ocrSlack is the discount applied to the first edit between two differing
// strings, so a single misread glyph on a short name stays above the
// name similarity floor.
const ocrSlack = 0.5

// Normalize lowercases s, strips accents, replaces punctuation with spaces
// and collapses runs of whitespace.
func Normalize(s string) string {
	// Chained transformers carry state, so each call gets its own.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripAccents, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Similarity scores two texts from 0 to 100. Identical normalized texts score
// 100, an empty text against a non-empty one scores 0. The result is the
// better of a plain and a token-sorted comparison, so word order does not
// matter.
func Similarity(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	switch {
	case na == nb:
		return 100
	case na == "" || nb == "":
		return 0
	}
	best := math.Max(editRatio(na, nb), editRatio(sortTokens(na), sortTokens(nb)))
	return clampPercent(int(math.Round(best)))
}

func editRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := float64(edlib.OSADamerauLevenshteinDistance(a, b))
	ratio := 100 * (1 - math.Max(0, dist-ocrSlack)/float64(longest))
	return math.Max(0, ratio)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
