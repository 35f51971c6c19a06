package main

import (
	"fmt"
	"io"

	"github.com/tomansill/pcoll/internal/similarity"
)

// writeReport prints results in the documented stdout format:
//
//	<k>/<K> images: <m> - <path>
//	    1/<m> <pp>% - <neighbor1>
//	    ...
//	<blank line>
//	...
//	Total similar files found: <F>
//
// pp is the similarity expressed as an integer percent, truncated (not
// rounded) toward zero.
func writeReport(w io.Writer, results similarity.Results) {
	total := len(results.Clusters)
	for k, c := range results.Clusters {
		fmt.Fprintf(w, "%d/%d images: %d - %s\n", k+1, total, len(c.Neighbors), c.Representative)
		for i, n := range c.Neighbors {
			pct := int(n.Similarity * 100)
			fmt.Fprintf(w, "    %d/%d %d%% - %s\n", i+1, len(c.Neighbors), pct, n.Path)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total similar files found: %d\n", results.TotalSimilarFiles())
}
