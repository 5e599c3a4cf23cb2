// core/bitext/decode_test.go
package bitext

import (
	"errors"
	"reflect"
	"testing"
)

// splitTok tokenizes each word into one subword per rune, ids derived from
// the rune values. Deterministic and multi-subword for multi-rune words.
type splitTok struct{}

func (splitTok) TokenizeWord(w string) []int64 {
	var ids []int64
	for _, r := range w {
		ids = append(ids, int64(r)+1000)
	}
	return ids
}

var testSpecials = Specials{CLS: 101, SEP: 102, PAD: 0, MaxLen: 16}

func TestDecodeWellFormed(t *testing.T) {
	d := NewDecoder(splitTok{}, testSpecials)
	line, err := d.Decode("ab c ||| xy")
	if err != nil {
		t.Fatal(err)
	}
	if line.IsSentinel() {
		t.Fatal("unexpected sentinel")
	}
	if !reflect.DeepEqual(line.SrcWords, []string{"ab", "c"}) {
		t.Fatalf("src words %v", line.SrcWords)
	}
	// ab→2 subwords, c→1: frame + 3 content + frame
	if got := len(line.Src.IDs); got != 5 {
		t.Fatalf("src ids len %d", got)
	}
	if line.Src.IDs[0] != 101 || line.Src.IDs[4] != 102 {
		t.Fatalf("missing framing markers: %v", line.Src.IDs)
	}
	if !reflect.DeepEqual(line.Src.WordIndex, []int{0, 0, 1}) {
		t.Fatalf("src word index %v", line.Src.WordIndex)
	}
	if !reflect.DeepEqual(line.Tgt.WordIndex, []int{0, 0}) {
		t.Fatalf("tgt word index %v", line.Tgt.WordIndex)
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := NewDecoder(splitTok{}, testSpecials)
	for _, raw := range []string{
		"",
		"   ",
		"hello world",              // no separator
		"a ||| b ||| c",            // too many fields
		"   ||| b",                 // empty source
		"a |||   ",                 // empty target
	} {
		_, err := d.Decode(raw)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Decode(%q): want *ParseError, got %v", raw, err)
		}
	}
}

func TestDecodeTruncation(t *testing.T) {
	d := NewDecoder(splitTok{}, Specials{CLS: 101, SEP: 102, MaxLen: 6})
	line, err := d.Decode("abcdefgh ij ||| xy")
	if err != nil {
		t.Fatal(err)
	}
	// content capped at MaxLen-2 = 4
	if got := len(line.Src.IDs); got != 6 {
		t.Fatalf("src ids len %d", got)
	}
	if got := len(line.Src.WordIndex); got != 4 {
		t.Fatalf("word index not truncated in lockstep: %d", got)
	}
	for _, wi := range line.Src.WordIndex {
		if wi != 0 {
			t.Fatalf("truncated index should only cover word 0: %v", line.Src.WordIndex)
		}
	}
}

func TestDecodeZeroContentIsMalformed(t *testing.T) {
	// tokenizer that drops every word
	d := NewDecoder(emptyTok{}, testSpecials)
	_, err := d.Decode("a ||| b")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want *ParseError, got %v", err)
	}
}

type emptyTok struct{}

func (emptyTok) TokenizeWord(string) []int64 { return nil }

func TestSentinel(t *testing.T) {
	s := Sentinel(testSpecials)
	if !s.IsSentinel() {
		t.Fatal("sentinel not recognized")
	}
	want := []int64{101, 999, 102}
	if !reflect.DeepEqual(s.Src.IDs, want) || !reflect.DeepEqual(s.Tgt.IDs, want) {
		t.Fatalf("sentinel frame %v / %v", s.Src.IDs, s.Tgt.IDs)
	}
}
