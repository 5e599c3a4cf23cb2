// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"

	"walign-core/align"
	"walign-core/bitext"
	"walign/internal/cli"
	"walign/internal/model"
	"walign/internal/pipeline"
	"walign/internal/version"
	"walign/internal/writers"
)

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()

	fs := cli.NewFlagSet("walign")
	fs.SetOutput(io.Discard)

	if len(argv) == 0 {
		fs.SetOutput(outw)
		fs.Usage()
		if err := outw.Flush(); writers.IsBrokenPipe(err) {
			return 0
		} else if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 3
		}
		return 0
	}

	opts, err := cli.ParseArgs(fs, argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(outw)
			fs.Usage()
			if e := outw.Flush(); writers.IsBrokenPipe(e) {
				return 0
			} else if e != nil {
				_, _ = fmt.Fprintln(stderr, e)
				return 3
			}
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err)
		fs.SetOutput(outw)
		fs.Usage()
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 2
	}

	if opts.Version {
		_, _ = fmt.Fprintf(outw, "walign version %s\n", version.Version)
		if e := outw.Flush(); writers.IsBrokenPipe(e) {
			return 0
		} else if e != nil {
			_, _ = fmt.Fprintln(stderr, e)
			return 3
		}
		return 0
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	tok, err := model.LoadTokenizer(opts.Tokenizer)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = tok.Close() }()
	sp := tok.Specials(opts.MaxSeqLen)

	if err := model.InitRuntime(opts.ORTLib); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	defer model.ShutdownRuntime()

	enc, err := model.NewONNXEncoder(model.EncoderConfig{
		ModelPath:  opts.Model,
		Layer:      opts.AlignLayer,
		HiddenSize: opts.HiddenSize,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = enc.Close() }()

	ext, err := align.New(align.Config{
		Extraction: opts.Extraction,
		Threshold:  opts.Threshold,
		Agg:        opts.ProbAgg,
		NeedProb:   opts.ProbOutput != "",
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	cfg := pipeline.Config{
		Input:     opts.Input,
		Workers:   workers,
		BatchSize: opts.BatchSize,
		Layer:     opts.AlignLayer,
		Quiet:     opts.Quiet,
	}
	outs := pipeline.Outputs{
		Align: opts.Output,
		Prob:  opts.ProbOutput,
		Word:  opts.WordOutput,
	}
	if err := pipeline.Run(parent, cfg, bitext.NewDecoder(tok, sp), sp, ext, enc, outs, stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 3
	}
	return 0
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
