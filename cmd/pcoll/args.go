package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const usage = `Usage: pcoll [-q] [-t N] [-p V] <dir> ... [-n <exdir> ...]

  -q          suppress progress and per-file errors
  -t N        worker thread count (default: detected cores)
  -p V        similarity threshold: integer 0-100 or float 0.0-1.0 (default: 0.9)
  -n <dirs>   one or more directories to exclude from the search`

// options holds the parsed, validated CLI surface.
type options struct {
	quiet     bool
	workers   int
	threshold float64
	roots     []string
	exclude   []string
}

// parseArgs splits args into the pflag-compatible portion and the
// trailing -n variadic, parses both, and validates every field.
//
// -n's "one or more directories, consuming every remaining argument" is
// not expressible as a single pflag flag (pflag flags take either zero
// or exactly one value), so -n and everything after it is cut out of
// args before pflag ever sees it, and parsed by hand.
func parseArgs(args []string) (options, error) {
	pflagArgs, excludeArgs, err := splitOnDashN(args)
	if err != nil {
		return options{}, err
	}

	fs := pflag.NewFlagSet("pcoll", pflag.ContinueOnError)
	fs.SetOutput(new(discard))
	quiet := fs.BoolP("quiet", "q", false, "suppress progress and per-file errors")
	threads := fs.IntP("threads", "t", runtime.NumCPU(), "worker thread count")
	percent := fs.StringP("percent", "p", "0.9", "similarity threshold")

	if err := fs.Parse(pflagArgs); err != nil {
		return options{}, fmt.Errorf("%w", err)
	}

	roots := fs.Args()
	if len(roots) == 0 {
		return options{}, fmt.Errorf("at least one search root is required")
	}
	if *threads < 1 {
		return options{}, fmt.Errorf("-t must be >= 1, got %d", *threads)
	}

	threshold, err := parseThreshold(*percent)
	if err != nil {
		return options{}, err
	}

	roots = stripTrailingSlashes(roots)
	excludeArgs = stripTrailingSlashes(excludeArgs)

	if err := validateDirs(roots); err != nil {
		return options{}, err
	}
	if err := validateDirs(excludeArgs); err != nil {
		return options{}, err
	}

	return options{
		quiet:     *quiet,
		workers:   *threads,
		threshold: threshold,
		roots:     roots,
		exclude:   excludeArgs,
	}, nil
}

// splitOnDashN returns everything before the first bare "-n" token (fed
// to pflag) and everything after it (the excluded directories). If -n is
// absent, every argument goes to pflag and exclude is empty.
func splitOnDashN(args []string) (pflagArgs, exclude []string, err error) {
	for i, a := range args {
		if a == "-n" {
			if i == len(args)-1 {
				return nil, nil, fmt.Errorf("-n requires at least one directory")
			}
			return args[:i], args[i+1:], nil
		}
	}
	return args, nil, nil
}

// parseThreshold accepts either an integer percent (0-100) or a float in
// [0.0, 1.0]. A bare integer is always read as a percent, per the CLI
// contract - "1" means 1%, not 100%.
func parseThreshold(raw string) (float64, error) {
	if i, err := strconv.Atoi(raw); err == nil {
		if i < 0 || i > 100 {
			return 0, fmt.Errorf("-p percent must be in 0..100, got %d", i)
		}
		return float64(i) / 100.0, nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("-p must be an integer percent or a float 0.0-1.0: %w", err)
	}
	if f < 0.0 || f > 1.0 {
		return 0, fmt.Errorf("-p float must be in 0.0..1.0, got %v", f)
	}
	return f, nil
}

// stripTrailingSlashes removes every trailing "/" and "\" from each
// directory argument.
func stripTrailingSlashes(dirs []string) []string {
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = strings.TrimRight(d, "/\\")
	}
	return out
}

// validateDirs requires every path to exist and be a directory.
func validateDirs(dirs []string) error {
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil {
			return fmt.Errorf("%s: %w", d, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory", d)
		}
	}
	return nil
}

// discard is an io.Writer that drops everything written to it, used to
// silence pflag's own usage printer so pcoll's usage banner is the only
// one a user ever sees.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
