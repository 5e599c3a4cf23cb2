// core/bitext/decode.go
package bitext

import (
	"fmt"
	"strings"
)

// FieldSep separates the source and target sentence on a bitext line.
const FieldSep = " ||| "

// sentinelFill is the reserved id placed between the framing markers of a
// sentinel sequence, keeping downstream batching away from zero-length input.
const sentinelFill = 999

// WordTokenizer maps one surface word to zero or more subword ids.
type WordTokenizer interface {
	TokenizeWord(word string) []int64
}

// Specials carries the tokenizer's special ids and sequence limit. It is
// passed explicitly into NewDecoder; there is no package-level token state.
type Specials struct {
	CLS    int64
	SEP    int64
	PAD    int64
	MaxLen int // maximum framed sequence length (framing markers included)
}

// Tokenized is one side of a decoded line: the framed subword ids and, for
// each content subword (framing excluded), the index of the word it belongs
// to. len(WordIndex) == len(IDs)-2 for well-formed lines.
type Tokenized struct {
	IDs       []int64
	WordIndex []int
}

// Line is a decoded bitext line. A sentinel line has empty word slices and
// the reserved 3-id frame on both sides.
type Line struct {
	SrcWords []string
	TgtWords []string
	Src      Tokenized
	Tgt      Tokenized
}

// IsSentinel reports whether l is the malformed-line placeholder.
func (l Line) IsSentinel() bool { return len(l.SrcWords) == 0 && len(l.TgtWords) == 0 }

// ParseError classifies a malformed bitext line.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "bitext: " + e.Reason }

// Decoder turns raw bitext lines into tokenized Lines.
type Decoder struct {
	tok WordTokenizer
	sp  Specials
}

func NewDecoder(tok WordTokenizer, sp Specials) *Decoder {
	return &Decoder{tok: tok, sp: sp}
}

// Sentinel returns the placeholder emitted in place of a malformed line so
// output line counts stay in parity with the input.
func Sentinel(sp Specials) Line {
	frame := func() Tokenized {
		return Tokenized{IDs: []int64{sp.CLS, sentinelFill, sp.SEP}, WordIndex: []int{-1}}
	}
	return Line{Src: frame(), Tgt: frame()}
}

// Decode parses one raw line. Malformed lines return a *ParseError; the
// caller decides whether to log and substitute Sentinel. A line is malformed
// when it is empty or whitespace-only, does not split into exactly two
// fields on FieldSep, a field trims empty, or truncation leaves a side with
// nothing but its framing markers.
func (d *Decoder) Decode(raw string) (Line, error) {
	if strings.TrimSpace(raw) == "" {
		return Line{}, &ParseError{Reason: "empty line"}
	}
	fields := strings.Split(raw, FieldSep)
	if len(fields) != 2 {
		return Line{}, &ParseError{Reason: fmt.Sprintf("expected 2 fields separated by %q, got %d", FieldSep, len(fields))}
	}
	src, tgt := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
	if src == "" || tgt == "" {
		return Line{}, &ParseError{Reason: "empty source or target field"}
	}

	line := Line{SrcWords: strings.Fields(src), TgtWords: strings.Fields(tgt)}
	var err error
	if line.Src, err = d.tokenize(line.SrcWords); err != nil {
		return Line{}, err
	}
	if line.Tgt, err = d.tokenize(line.TgtWords); err != nil {
		return Line{}, err
	}
	return line, nil
}

// tokenize maps words to a framed subword sequence and its word index,
// truncating both in lockstep to the sequence limit.
func (d *Decoder) tokenize(words []string) (Tokenized, error) {
	var ids []int64
	var wordIndex []int
	for i, w := range words {
		sub := d.tok.TokenizeWord(w)
		ids = append(ids, sub...)
		for range sub {
			wordIndex = append(wordIndex, i)
		}
	}
	if max := d.sp.MaxLen - 2; max > 0 && len(ids) > max {
		ids = ids[:max]
		wordIndex = wordIndex[:max]
	}
	if len(ids) == 0 {
		return Tokenized{}, &ParseError{Reason: "no content subwords survive truncation"}
	}
	framed := make([]int64, 0, len(ids)+2)
	framed = append(framed, d.sp.CLS)
	framed = append(framed, ids...)
	framed = append(framed, d.sp.SEP)
	return Tokenized{IDs: framed, WordIndex: wordIndex}, nil
}
