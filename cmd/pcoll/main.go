// Command pcoll finds near-duplicate and identical images across one or
// more directory trees: it walks the given roots, fingerprints every
// regular file, and reports clusters of files whose content or visual
// appearance collide at or above a similarity threshold.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the testable entry point: it never touches os.Args or
// os.Stdout/Stderr directly, so argument parsing and output formatting
// can be exercised without a subprocess.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, usage)
		return 1
	}

	if err := execute(opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
