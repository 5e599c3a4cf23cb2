// internal/output/records.go
package output

import (
	"sort"
	"strconv"
	"strings"

	"walign-core/align"
)

// WordSep separates source and target words in the word-pair output; chosen
// to be unlikely to collide with natural text.
const WordSep = "<sep>"

// SortedPairs returns the alignment pairs of set ordered by (src, tgt), with
// the sentinel pair suppressed. All three record formats iterate this order,
// which keeps the files positionally aligned and runs reproducible.
func SortedPairs(set align.Set) []align.Pair {
	pairs := make([]align.Pair, 0, len(set))
	for p := range set {
		if p == align.SentinelPair {
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Src != pairs[j].Src {
			return pairs[i].Src < pairs[j].Src
		}
		return pairs[i].Tgt < pairs[j].Tgt
	})
	return pairs
}

// AlignRecord renders "src-tgt" pairs space-joined; empty for no alignment.
func AlignRecord(pairs []align.Pair) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(p.Src))
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(p.Tgt))
	}
	return sb.String()
}

// ProbRecord renders the confidence of each pair, positionally aligned with
// AlignRecord on the same line.
func ProbRecord(pairs []align.Pair, set align.Set) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(set[p], 'f', 6, 64))
	}
	return sb.String()
}

// WordRecord renders the surface word pairs, e.g. "the<sep>le".
func WordRecord(pairs []align.Pair, srcWords, tgtWords []string) string {
	var sb strings.Builder
	emitted := 0
	for _, p := range pairs {
		if p.Src >= len(srcWords) || p.Tgt >= len(tgtWords) {
			continue
		}
		if emitted > 0 {
			sb.WriteByte(' ')
		}
		emitted++
		sb.WriteString(srcWords[p.Src])
		sb.WriteString(WordSep)
		sb.WriteString(tgtWords[p.Tgt])
	}
	return sb.String()
}
