package evaluator

import "strings"

// stopWords are removed from the correct answer before computing word
// overlap so that articles and filler do not inflate the requirement.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "to": true, "in": true,
	"on": true, "at": true, "by": true, "for": true, "with": true, "and": true,
	"or": true, "it": true, "its": true, "as": true, "this": true, "that": true,
	"from": true, "into": true, "which": true, "their": true, "there": true,
}

// normalize lowercases and trims a string for exact comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeLoose lowercases, strips punctuation (keeping characters that are
// meaningful in numeric expressions) and collapses whitespace.
func normalizeLoose(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '/' || r == '-':
			sb.WriteRune(r)
		case r > 127: // keep non-ASCII letters as-is
			sb.WriteRune(r)
		default:
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// wordSet returns the set of normalized words in s.
func wordSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(normalizeLoose(s)) {
		words[w] = true
	}
	return words
}

// contentWords returns the normalized words of s with stop words removed.
func contentWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(normalizeLoose(s)) {
		if !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// similarityRatio computes the matching-blocks ratio between two strings:
// twice the total length of the longest recursively matched common
// substrings, divided by the combined length. Equal strings score 1, fully
// disjoint strings score 0.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	matched := matchingBlocks(ra, rb)
	return 2 * float64(matched) / float64(len(ra)+len(rb))
}

// matchingBlocks returns the total length of common substrings found by
// repeatedly taking the longest common substring and recursing on the
// unmatched portions on either side of it.
func matchingBlocks(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a[:ai], b[:bi])
	total += matchingBlocks(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonSubstring returns the start indexes and length of the longest
// substring common to a and b.
func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
