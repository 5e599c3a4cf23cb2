// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"

	"walign/internal/version"
)

// Extraction methods
const (
	ExtractionSoftmax  = "softmax"
	ExtractionEntmax15 = "entmax15"
)

// Probability aggregation modes
const (
	AggMax  = "max"
	AggMean = "mean"
)

// Options holds all CLI flags and arguments.
type Options struct {
	// Input / output
	Input      string
	Output     string
	ProbOutput string
	WordOutput string

	// Model
	Model     string
	Tokenizer string
	ORTLib    string

	// Alignment parameters
	AlignLayer int
	Extraction string
	Threshold  float64
	ProbAgg    string
	MaxSeqLen  int
	HiddenSize int

	// Performance
	Workers   int
	BatchSize int

	Quiet   bool
	Version bool
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: neural word alignment for parallel text

License: MIT
Version: %s

Usage of %s:
`, name, version.Version, name)
		fs.PrintDefaults()
	}
	return fs
}

// Parse is the top-level call for CLI parsing.
func Parse() (Options, error) { return ParseArgs(flag.CommandLine, nil) }

// ParseArgs registers and parses all flags, returns an Options struct.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var opt Options
	var help bool

	// Input / output
	fs.StringVar(&opt.Input, "input", "", "parallel text file, one 'src ||| tgt' pair per line [*]")
	fs.StringVar(&opt.Output, "output", "", "alignment output file ('i-j' pairs per line) [*]")
	fs.StringVar(&opt.ProbOutput, "prob-output", "", "optional alignment probability output file")
	fs.StringVar(&opt.WordOutput, "word-output", "", "optional aligned word-pair output file")

	// Model
	fs.StringVar(&opt.Model, "model", "", "ONNX encoder model file [*]")
	fs.StringVar(&opt.Tokenizer, "tokenizer", "", "HuggingFace tokenizer.json file [*]")
	fs.StringVar(&opt.ORTLib, "ort-lib", "", "path to the onnxruntime shared library (default: ORT_LIB_PATH env)")

	// Alignment parameters
	fs.IntVar(&opt.AlignLayer, "align-layer", 8, "encoder layer whose hidden states are aligned [8]")
	fs.StringVar(&opt.Extraction, "extraction", ExtractionSoftmax, "extraction method: softmax | entmax15 ["+ExtractionSoftmax+"]")
	fs.Float64Var(&opt.Threshold, "softmax-threshold", 0.001, "probability threshold for softmax extraction [0.001]")
	fs.StringVar(&opt.ProbAgg, "prob-agg", AggMax, "word-level probability aggregation: max | mean ["+AggMax+"]")
	fs.IntVar(&opt.MaxSeqLen, "max-seq-len", 512, "maximum subword sequence length incl. specials [512]")
	fs.IntVar(&opt.HiddenSize, "hidden-size", 768, "encoder hidden state width [768]")

	// Performance
	fs.IntVar(&opt.Workers, "workers", 4, "number of file shards processed in parallel (0 = all CPUs) [4]")
	fs.IntVar(&opt.BatchSize, "batch-size", 32, "sentence pairs per encoder batch [32]")

	fs.BoolVar(&opt.Quiet, "quiet", false, "suppress per-line warnings [false]")
	fs.BoolVar(&opt.Version, "v", false, "print version and exit (shorthand) [false]")
	fs.BoolVar(&opt.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		return opt, err
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}
	if opt.Version {
		return opt, nil
	}

	// Validation
	switch {
	case opt.Input == "":
		return opt, errors.New("--input is required")
	case opt.Output == "":
		return opt, errors.New("--output is required")
	case opt.Model == "":
		return opt, errors.New("--model is required")
	case opt.Tokenizer == "":
		return opt, errors.New("--tokenizer is required")
	}
	if opt.Extraction != ExtractionSoftmax && opt.Extraction != ExtractionEntmax15 {
		return opt, fmt.Errorf("invalid --extraction %q", opt.Extraction)
	}
	if opt.ProbAgg != AggMax && opt.ProbAgg != AggMean {
		return opt, fmt.Errorf("invalid --prob-agg %q", opt.ProbAgg)
	}
	if opt.Threshold < 0 || opt.Threshold > 1 {
		return opt, errors.New("--softmax-threshold must be in [0,1]")
	}
	if opt.AlignLayer < 0 {
		return opt, errors.New("--align-layer must be ≥ 0")
	}
	if opt.MaxSeqLen < 3 {
		return opt, errors.New("--max-seq-len must be ≥ 3")
	}
	if opt.HiddenSize < 1 {
		return opt, errors.New("--hidden-size must be ≥ 1")
	}
	if opt.Workers < 0 {
		return opt, errors.New("--workers must be ≥ 0")
	}
	if opt.BatchSize < 1 {
		return opt, errors.New("--batch-size must be ≥ 1")
	}
	return opt, nil
}
