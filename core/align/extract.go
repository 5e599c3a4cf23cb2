// core/align/extract.go
package align

import "fmt"

// Extraction policies.
const (
	ExtractionSoftmax  = "softmax"  // thresholded softmax
	ExtractionEntmax15 = "entmax15" // sparse 1.5-entmax, keeps strictly positive entries
)

// Word-level score aggregation over surviving subword pairs.
const (
	AggMax  = "max"
	AggMean = "mean"
)

// Pair is a 0-based (source word, target word) alignment.
type Pair struct {
	Src, Tgt int
}

// Set maps aligned word pairs to a confidence in [0,1]. Scores are only
// meaningful when the extractor was configured with NeedProb.
type Set map[Pair]float64

// SentinelPair marks "no alignment produced" for a sentinel line. It must be
// suppressed from output.
var SentinelPair = Pair{Src: -1, Tgt: -1}

// SentinelSet is the result short-circuited for sentinel lines.
func SentinelSet() Set { return Set{SentinelPair: 0} }

// Config controls alignment extraction.
type Config struct {
	Extraction string  // ExtractionSoftmax | ExtractionEntmax15
	Threshold  float64 // softmax survival threshold (ignored by entmax15)
	Agg        string  // AggMax | AggMean
	NeedProb   bool    // compute word-level confidences
}

// Extractor derives word-level alignments from subword hidden states.
type Extractor struct {
	cfg Config
}

// New validates cfg and returns an Extractor.
func New(cfg Config) (*Extractor, error) {
	switch cfg.Extraction {
	case ExtractionSoftmax, ExtractionEntmax15:
	default:
		return nil, fmt.Errorf("align: unknown extraction %q", cfg.Extraction)
	}
	switch cfg.Agg {
	case AggMax, AggMean:
	default:
		return nil, fmt.Errorf("align: unknown aggregation %q", cfg.Agg)
	}
	return &Extractor{cfg: cfg}, nil
}

// Extract computes the subword similarity matrix between the content hidden
// states of both sides, applies the extraction policy in the src→tgt and
// tgt→src directions independently, keeps the intersection, and collapses
// survivors to word pairs via the word index maps. An empty Set is a valid
// result for a well-formed line.
func (e *Extractor) Extract(hidSrc, hidTgt [][]float32, srcMap, tgtMap []int) Set {
	out := Set{}
	ns, nt := len(hidSrc), len(hidTgt)
	if ns == 0 || nt == 0 {
		return out
	}

	sim := make([][]float64, ns)
	for i := range sim {
		sim[i] = make([]float64, nt)
		for j := 0; j < nt; j++ {
			sim[i][j] = dot(hidSrc[i], hidTgt[j])
		}
	}

	fwd := e.normalizeRows(sim)            // src→tgt
	bwd := e.normalizeRows(transpose(sim)) // tgt→src

	type acc struct {
		sum, max float64
		n        int
	}
	accs := map[Pair]*acc{}
	for i := 0; i < ns; i++ {
		if srcMap[i] < 0 {
			continue
		}
		for j := 0; j < nt; j++ {
			if tgtMap[j] < 0 {
				continue
			}
			if !e.survives(fwd[i][j]) || !e.survives(bwd[j][i]) {
				continue
			}
			p := Pair{Src: srcMap[i], Tgt: tgtMap[j]}
			if !e.cfg.NeedProb {
				out[p] = 0
				continue
			}
			score := (fwd[i][j] + bwd[j][i]) / 2
			a := accs[p]
			if a == nil {
				a = &acc{}
				accs[p] = a
			}
			a.sum += score
			a.n++
			if score > a.max {
				a.max = score
			}
		}
	}
	if e.cfg.NeedProb {
		for p, a := range accs {
			if e.cfg.Agg == AggMean {
				out[p] = a.sum / float64(a.n)
			} else {
				out[p] = a.max
			}
		}
	}
	return out
}

func (e *Extractor) normalizeRows(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		if e.cfg.Extraction == ExtractionEntmax15 {
			out[i] = entmax15(row)
		} else {
			out[i] = softmax(row)
		}
	}
	return out
}

func (e *Extractor) survives(p float64) bool {
	if e.cfg.Extraction == ExtractionEntmax15 {
		return p > 0
	}
	return p > e.cfg.Threshold
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for j := range out {
		out[j] = make([]float64, len(m))
		for i := range m {
			out[j][i] = m[i][j]
		}
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	s := 0.0
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
