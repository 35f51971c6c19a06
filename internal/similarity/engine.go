// Package similarity implements the pairwise perceptual comparison and
// result materialization that run once intake has drained.
//
// # Phase 1: pairwise perceptual scan
//
// Enumerate the distinct content hashes that carry a perceptual hash (D,
// size M). Two task queues cooperate: outerQueue holds indices into D,
// compareQueue holds (i,j) pairs. Workers drain one outerQueue item at a
// time, fanning out every pair (i,j) with j strictly after i into
// compareQueue, and drain one compareQueue item at a time, scoring it
// and - if at or above threshold - writing both mirror entries into a
// single mutex-guarded result map. This keeps memory bounded: pairs are
// produced incrementally by the outer step rather than materializing all
// M*(M-1)/2 of them up front.
//
// # Phase 2: result materialization
//
// For each inserted path, in insertion order, build its cluster from two
// sources: every other path sharing its content hash (similarity 1.0),
// and every path in a perceptually-colliding content hash's bucket
// (similarity = the recorded score, clamped to 0.99 when the score is
// 1.0 - distinguishing "perceptually identical but not byte-identical"
// from true byte-identity). Empty clusters are dropped; each cluster's
// neighbor list sorts by similarity descending with a path-ascending
// tie-break, and the cluster list itself sorts by size descending with a
// representative-path-ascending tie-break, both stably, for reproducible
// output across runs given the same database contents.
package similarity

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tomansill/pcoll/internal/console"
	"github.com/tomansill/pcoll/internal/fingerprint"
	"github.com/tomansill/pcoll/internal/pcolldb"
	"github.com/tomansill/pcoll/internal/queue"
)

// idleSleep mirrors intake's polling interval: workers sleep briefly
// when both phase-1 queues are momentarily empty rather than parking on
// a condition variable.
const idleSleep = 10 * time.Millisecond

// Neighbor is one entry in a cluster's ranked neighbor list.
type Neighbor struct {
	Path       string
	Similarity float64
}

// Cluster is one representative path and its ranked neighbors.
type Cluster struct {
	Representative string
	Neighbors      []Neighbor
}

// Results is the final, fully ordered output of CompileResults.
type Results struct {
	Clusters []Cluster
}

// TotalSimilarFiles is the number of files that have at least one match -
// one per cluster, not a sum of neighbor counts. Three byte-identical
// files produce three clusters of size 2 each and a total of 3, not 6.
func (r Results) TotalSimilarFiles() int {
	return len(r.Clusters)
}

// pairKey identifies an unordered pair of distinct-content indices by
// construction: i is always strictly less than j, so there is no need
// for a separate visited-pairs set to dedup (i,j) against (j,i).
type pairKey struct{ i, j int }

type stats struct {
	comparisons atomic.Int64
	collisions  atomic.Int64
	startTime   time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("compared %s pairs, found %s collisions in %s",
		humanize.Comma(s.comparisons.Load()), humanize.Comma(s.collisions.Load()),
		time.Since(s.startTime).Round(time.Millisecond))
}

// Engine runs the similarity comparison and materialization phases.
type Engine struct {
	sink console.Sink
}

// New creates an Engine that reports progress to sink.
func New(sink console.Sink) *Engine {
	if sink == nil {
		sink = console.NewNoop()
	}
	return &Engine{sink: sink}
}

// CompileResults scans db for perceptual collisions at or above
// threshold using workers goroutines, then materializes ranked clusters.
func (e *Engine) CompileResults(db *pcolldb.Database, threshold float64, workers int) (Results, error) {
	if workers < 1 {
		workers = 1
	}

	collisions, err := e.scanCollisions(db, threshold, workers)
	if err != nil {
		return Results{}, err
	}
	return materialize(db, collisions)
}

// scanCollisions runs phase 1 and returns the mirrored collision map:
// dhashCollisions[a][b] == dhashCollisions[b][a] == score, for every
// pair scoring at or above threshold.
func (e *Engine) scanCollisions(db *pcolldb.Database, threshold float64, workers int) (map[pcolldb.ContentHash]map[pcolldb.ContentHash]float64, error) {
	d := db.DistinctHashedContents()
	m := len(d)

	result := make(map[pcolldb.ContentHash]map[pcolldb.ContentHash]float64)
	var resultMu sync.Mutex

	if m < 2 {
		return result, nil
	}

	outerQueue := queue.New[int]()
	compareQueue := queue.New[pairKey]()
	for i := 0; i < m; i++ {
		outerQueue.Insert(i)
	}

	st := &stats{startTime: time.Now()}
	e.sink.Tick(st)

	// New pairs are fanned out only while compareQueue holds fewer than
	// pairBacklog pairs, so scoring keeps pace with pair production.
	pairBacklog := workers * m

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for outerQueue.Outstanding()+compareQueue.Outstanding() > 0 {
				didOuter := false
				if compareQueue.Len() < pairBacklog {
					didOuter = drainOuter(outerQueue, compareQueue, m)
				}
				didCompare := drainCompare(compareQueue, d, db, threshold, result, &resultMu, st, e.sink)
				if !didOuter && !didCompare {
					time.Sleep(idleSleep)
				}
			}
		}()
	}
	wg.Wait()

	return result, nil
}

// drainOuter polls one outerQueue index and fans out every downstream
// pair (i,j) with j>i into compareQueue. Pairs are produced incrementally
// here rather than all at once up front, and the worker loop only calls
// this while compareQueue holds fewer than workers*m pairs, so
// compareQueue stays roughly workers*chunk deep instead of holding O(M^2)
// pairs in memory at once.
func drainOuter(outerQueue *queue.Queue[int], compareQueue *queue.Queue[pairKey], m int) bool {
	i, ok := outerQueue.Poll()
	if !ok {
		return false
	}
	defer outerQueue.DecrementOutstanding()

	for j := i + 1; j < m; j++ {
		compareQueue.Insert(pairKey{i, j})
	}
	return true
}

// drainCompare polls one compareQueue pair, scores it, and records both
// mirror entries under resultMu if the score is at or above threshold.
func drainCompare(
	compareQueue *queue.Queue[pairKey],
	d []pcolldb.ContentHash,
	db *pcolldb.Database,
	threshold float64,
	result map[pcolldb.ContentHash]map[pcolldb.ContentHash]float64,
	resultMu *sync.Mutex,
	st *stats,
	sink console.Sink,
) bool {
	pair, ok := compareQueue.Poll()
	if !ok {
		return false
	}
	defer compareQueue.DecrementOutstanding()

	a, b := d[pair.i], d[pair.j]
	ha, okA := db.DhashOf(a)
	hb, okB := db.DhashOf(b)
	if !okA || !okB {
		return true
	}

	score := fingerprint.Similarity(ha, hb)
	st.comparisons.Add(1)
	if score >= threshold {
		st.collisions.Add(1)
		resultMu.Lock()
		setMirror(result, a, b, score)
		resultMu.Unlock()
	}
	sink.Tick(st)
	return true
}

func setMirror(m map[pcolldb.ContentHash]map[pcolldb.ContentHash]float64, a, b pcolldb.ContentHash, score float64) {
	if m[a] == nil {
		m[a] = make(map[pcolldb.ContentHash]float64)
	}
	if m[b] == nil {
		m[b] = make(map[pcolldb.ContentHash]float64)
	}
	m[a][b] = score
	m[b][a] = score
}

// exactClampedSimilarity is the reported similarity for a perceptual
// collision whose raw score is 1.0 but whose content hash differs from
// the representative path's - distinguishing "perceptually identical,
// not byte-identical" from a true exact duplicate.
const exactClampedSimilarity = 0.99

// materialize runs phase 2: for every inserted path, build its cluster
// from exact-duplicate siblings and perceptual collisions, then sort.
func materialize(db *pcolldb.Database, collisions map[pcolldb.ContentHash]map[pcolldb.ContentHash]float64) (Results, error) {
	var clusters []Cluster

	for _, p := range db.Paths() {
		ch, ok := db.ChashOf(p)
		if !ok {
			return Results{}, fmt.Errorf("fatal: %s has no recorded content hash", p)
		}

		var neighbors []Neighbor
		seen := make(map[string]struct{})

		for _, sibling := range db.PathsWithChash(ch) {
			if sibling == p {
				continue
			}
			if _, dup := seen[sibling]; dup {
				continue
			}
			seen[sibling] = struct{}{}
			neighbors = append(neighbors, Neighbor{Path: sibling, Similarity: 1.0})
		}

		for otherCh, score := range collisions[ch] {
			reported := score
			if reported == 1.0 {
				reported = exactClampedSimilarity
			}
			for _, sibling := range db.PathsWithChash(otherCh) {
				if sibling == p {
					continue
				}
				if _, dup := seen[sibling]; dup {
					continue
				}
				seen[sibling] = struct{}{}
				neighbors = append(neighbors, Neighbor{Path: sibling, Similarity: reported})
			}
		}

		if len(neighbors) == 0 {
			continue
		}

		sort.SliceStable(neighbors, func(i, j int) bool {
			if neighbors[i].Similarity != neighbors[j].Similarity {
				return neighbors[i].Similarity > neighbors[j].Similarity
			}
			return neighbors[i].Path < neighbors[j].Path
		})

		clusters = append(clusters, Cluster{Representative: p, Neighbors: neighbors})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Neighbors) != len(clusters[j].Neighbors) {
			return len(clusters[i].Neighbors) > len(clusters[j].Neighbors)
		}
		return clusters[i].Representative < clusters[j].Representative
	})

	return Results{Clusters: clusters}, nil
}
