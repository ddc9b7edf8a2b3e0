package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-notes/internal/summary"
)

func runSummarize(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	rate := fs.Float64("rate", summary.DefaultRate, "Fraction of sentences to keep, in (0, 1]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: notes summarize [-rate r] [file|-]")
	}

	text, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	_, err = fmt.Fprintln(stdout, summary.Summarize(text, *rate))
	return err
}
