package main

import (
	"fmt"
	"io"

	"github.com/tomansill/pcoll/internal/console"
	"github.com/tomansill/pcoll/internal/intake"
	"github.com/tomansill/pcoll/internal/pcolldb"
	"github.com/tomansill/pcoll/internal/similarity"
)

// execute runs the full pipeline - intake, then similarity - and writes
// the formatted report to stdout. Per-file errors from either phase are
// surfaced through sink (quiet mode simply uses a no-op sink); a fatal
// error from either phase is returned to the caller.
func execute(opts options, stdout, stderr io.Writer) error {
	sink := newSink(opts.quiet, stderr)

	db := pcolldb.New()
	pipeline := intake.New(db, opts.exclude, sink)
	if err := pipeline.Run(opts.roots, opts.workers); err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	engine := similarity.New(sink)
	results, err := engine.CompileResults(db, opts.threshold, opts.workers)
	if err != nil {
		return fmt.Errorf("similarity: %w", err)
	}

	writeReport(stdout, results)
	return nil
}

// newSink picks the console sink: quiet mode discards every line,
// otherwise output goes to stderr (stdout is reserved for the final
// report, never interleaved with progress).
func newSink(quiet bool, stderr io.Writer) console.Sink {
	if quiet {
		return console.NewNoop()
	}
	return console.New(stderr)
}
