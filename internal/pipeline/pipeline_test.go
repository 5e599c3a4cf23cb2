// internal/pipeline/pipeline_test.go
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"walign-core/align"
	"walign-core/bitext"
)

// runeTok tokenizes one subword per rune; same surface word always maps to
// the same id sequence, which makes the fake encoder's alignments exact.
type runeTok struct{}

func (runeTok) TokenizeWord(w string) []int64 {
	var ids []int64
	for _, r := range w {
		ids = append(ids, int64(r)+1000)
	}
	return ids
}

// bitEnc derives a deterministic ±4 vector from each token id's low bits, so
// identical tokens get identical vectors and the similarity matrix is sharp.
type bitEnc struct {
	fail bool
}

func (e bitEnc) Encode(_ context.Context, ids, mask [][]int64, _ int) ([][][]float32, error) {
	if e.fail {
		return nil, errors.New("encoder backend unavailable")
	}
	out := make([][][]float32, len(ids))
	for b, row := range ids {
		out[b] = make([][]float32, len(row))
		for p, id := range row {
			v := make([]float32, 8)
			if mask[b][p] != 0 {
				for k := range v {
					if (id>>k)&1 == 1 {
						v[k] = 4
					} else {
						v[k] = -4
					}
				}
			}
			out[b][p] = v
		}
	}
	return out, nil
}

var testSpecials = bitext.Specials{CLS: 101, SEP: 102, PAD: 0, MaxLen: 128}

func testRun(t *testing.T, dir, input string, workers int, prob, word bool, enc bitEnc) (Outputs, *bytes.Buffer, error) {
	t.Helper()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}
	outs := Outputs{Align: filepath.Join(dir, "out.align")}
	if prob {
		outs.Prob = filepath.Join(dir, "out.prob")
	}
	if word {
		outs.Word = filepath.Join(dir, "out.word")
	}
	ext, err := align.New(align.Config{
		Extraction: align.ExtractionSoftmax,
		Threshold:  0.001,
		Agg:        align.AggMax,
		NeedProb:   prob,
	})
	if err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	runErr := Run(
		context.Background(),
		Config{Input: in, Workers: workers, BatchSize: 2, Layer: 8, Quiet: false},
		bitext.NewDecoder(runeTok{}, testSpecials),
		testSpecials,
		ext,
		enc,
		outs,
		&stderr,
	)
	return outs, &stderr, runErr
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRunProducesAlignedOutputs(t *testing.T) {
	input := "ab cd ||| ab cd\nhello world\nef ||| ef\n"
	outs, stderr, err := testRun(t, t.TempDir(), input, 1, true, true, bitEnc{})
	if err != nil {
		t.Fatal(err)
	}

	alignLines := readLines(t, outs.Align)
	if len(alignLines) != 3 {
		t.Fatalf("align lines = %d, want 3", len(alignLines))
	}
	if alignLines[0] != "0-0 1-1" {
		t.Fatalf("line 1 = %q", alignLines[0])
	}
	if alignLines[1] != "" {
		t.Fatalf("malformed line must yield empty record, got %q", alignLines[1])
	}
	if alignLines[2] != "0-0" {
		t.Fatalf("line 3 = %q", alignLines[2])
	}

	wordLines := readLines(t, outs.Word)
	if wordLines[0] != "ab<sep>ab cd<sep>cd" {
		t.Fatalf("word line 1 = %q", wordLines[0])
	}

	probLines := readLines(t, outs.Prob)
	for i := range alignLines {
		np := 0
		if probLines[i] != "" {
			np = len(strings.Fields(probLines[i]))
		}
		na := 0
		if alignLines[i] != "" {
			na = len(strings.Fields(alignLines[i]))
		}
		if np != na {
			t.Fatalf("line %d: %d probs for %d pairs", i+1, np, na)
		}
		for _, f := range strings.Fields(probLines[i]) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil || v <= 0 || v > 1 {
				t.Fatalf("line %d: bad probability %q", i+1, f)
			}
		}
	}

	if !strings.Contains(stderr.String(), "not in the correct format") {
		t.Fatalf("expected malformed-line warning, got %q", stderr.String())
	}
}

func TestRunWellFormednessOfPairs(t *testing.T) {
	input := "the cat sat ||| le chat etait assis\n"
	outs, _, err := testRun(t, t.TempDir(), input, 1, false, false, bitEnc{})
	if err != nil {
		t.Fatal(err)
	}
	line := readLines(t, outs.Align)[0]
	if line == "" {
		t.Fatal("well-formed pair produced empty alignment")
	}
	for _, tok := range strings.Fields(line) {
		parts := strings.SplitN(tok, "-", 2)
		if len(parts) != 2 {
			t.Fatalf("bad pair %q", tok)
		}
		i, err1 := strconv.Atoi(parts[0])
		j, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || i < 0 || i >= 3 || j < 0 || j >= 4 {
			t.Fatalf("pair %q out of range", tok)
		}
	}
}

func TestRunParallelMatchesSerial(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 23; i++ {
		switch i % 4 {
		case 0:
			sb.WriteString("ab cd ||| cd ab\n")
		case 1:
			sb.WriteString("no separator here\n")
		case 2:
			sb.WriteString("xy ||| xy\n")
		default:
			sb.WriteString("ab ||| ab cd xy\n")
		}
	}
	input := sb.String()

	run := func(workers int) [3]string {
		dir := t.TempDir()
		outs, _, err := testRun(t, dir, input, workers, true, true, bitEnc{})
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		var got [3]string
		for i, p := range []string{outs.Align, outs.Prob, outs.Word} {
			data, err := os.ReadFile(p)
			if err != nil {
				t.Fatal(err)
			}
			got[i] = string(data)
		}
		return got
	}

	serial := run(1)
	for _, workers := range []int{2, 4, 8} {
		if parallel := run(workers); parallel != serial {
			t.Fatalf("workers=%d output differs from serial", workers)
		}
	}

	// line-count preservation across every enabled stream
	want := strings.Count(input, "\n")
	dir := t.TempDir()
	outs, _, err := testRun(t, dir, input, 4, true, true, bitEnc{})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{outs.Align, outs.Prob, outs.Word} {
		if got := len(readLines(t, p)); got != want {
			t.Fatalf("%s: %d lines, want %d", p, got, want)
		}
	}
}

func TestRunEncoderErrorAborts(t *testing.T) {
	_, _, err := testRun(t, t.TempDir(), "ab ||| cd\n", 2, false, false, bitEnc{fail: true})
	if err == nil {
		t.Fatal("expected encoder failure to abort the run")
	}
	if !strings.Contains(err.Error(), "encoder backend unavailable") {
		t.Fatalf("error should carry the encoder cause: %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	ext, err := align.New(align.Config{Extraction: align.ExtractionSoftmax, Threshold: 0.001, Agg: align.AggMax})
	if err != nil {
		t.Fatal(err)
	}
	runErr := Run(
		context.Background(),
		Config{Input: filepath.Join(dir, "missing.txt"), Workers: 2, BatchSize: 2},
		bitext.NewDecoder(runeTok{}, testSpecials),
		testSpecials,
		ext,
		bitEnc{},
		Outputs{Align: filepath.Join(dir, "out.align")},
		&bytes.Buffer{},
	)
	if runErr == nil {
		t.Fatal("expected setup error for missing input")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.align")); !os.IsNotExist(err) {
		t.Fatal("setup failure must not create output files")
	}
}

func TestRunEmptyInput(t *testing.T) {
	outs, _, err := testRun(t, t.TempDir(), "", 4, false, false, bitEnc{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outs.Align)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("empty input must yield empty output, got %q", data)
	}
}
