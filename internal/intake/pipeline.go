// Package intake runs the directory-traversal + file-intake pipeline:
// roots flow into a path queue, workers fan directories back into that
// same queue and regular files into a file queue, and every worker
// inserts files into the fingerprint database as it drains the file
// queue.
//
// # Worker loop
//
// Every worker runs the identical loop - there is no dedicated "path
// worker" vs. "file worker":
//
//	for path_queue.outstanding + file_queue.outstanding > 0:
//	    did_p = try_process_path()
//	    did_f = try_process_file()
//	    if not did_p and not did_f: sleep(10ms)
//
// Interleaving path and file work in one loop (rather than partitioning
// workers by queue) avoids starvation when a tree has few large
// directories - partitioned path workers would otherwise serialize on
// the handful of big directories while file workers starve - and keeps
// backpressure implicit: a worker that is behind on file work still
// makes path-queue progress on its next iteration.
package intake

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tomansill/pcoll/internal/console"
	"github.com/tomansill/pcoll/internal/pcolldb"
	"github.com/tomansill/pcoll/internal/queue"
)

// idleSleep is how long a worker waits before retrying when both queues
// were momentarily empty. There is no condition-variable wakeup: uneven
// work distribution across a directory tree means false-idle windows are
// short, so polling is simpler than coordinating a wakeup on every
// insert.
const idleSleep = 10 * time.Millisecond

// dirBatchSize bounds how many directory entries are read per ReadDir
// call, so a directory with millions of entries doesn't balloon memory.
const dirBatchSize = 1000

// Pipeline drives the path queue -> file queue -> database pipeline.
type Pipeline struct {
	PathQueue *queue.Queue[string]
	FileQueue *queue.Queue[string]

	db      *pcolldb.Database
	exclude map[string]struct{}
	sink    console.Sink

	stats stats
}

type stats struct {
	scannedPaths  atomic.Int64
	insertedFiles atomic.Int64
}

// New creates a Pipeline that inserts discovered files into db, skipping
// anything in exclude (relative entries are made absolute, then matched
// by absolute path string equality only - the core does not do prefix
// matching, a documented limitation).
func New(db *pcolldb.Database, exclude []string, sink console.Sink) *Pipeline {
	excludeSet := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			e = abs
		}
		excludeSet[e] = struct{}{}
	}
	return &Pipeline{
		PathQueue: queue.New[string](),
		FileQueue: queue.New[string](),
		db:        db,
		exclude:   excludeSet,
		sink:      sink,
	}
}

func (s *stats) String() string {
	return fmt.Sprintf("scanned %s paths, inserted %s files",
		humanize.Comma(s.scannedPaths.Load()), humanize.Comma(s.insertedFiles.Load()))
}

// Run seeds the path queue with roots (absolutized) and spawns workers
// workers running the interleaved loop until both queues report
// outstanding==0.
func (p *Pipeline) Run(roots []string, workers int) error {
	if workers < 1 {
		workers = 1
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", root, err)
		}
		p.PathQueue.Insert(abs)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			p.workerLoop()
		}()
	}
	wg.Wait()

	return nil
}

func (p *Pipeline) workerLoop() {
	for p.PathQueue.Outstanding()+p.FileQueue.Outstanding() > 0 {
		didPath := p.tryProcessPath()
		didFile := p.tryProcessFile()
		if !didPath && !didFile {
			time.Sleep(idleSleep)
		}
	}
}

// tryProcessPath polls one path and, if present, classifies it:
// directories fan their entries back into the path queue, regular files
// move to the file queue, everything else is skipped. Returns false only
// when the queue was empty.
//
// Symlink handling: a symlink to a regular file is skipped (the core
// never follows it into the file queue); a symlink to a directory
// follows the platform's directory-iterator default, i.e. it is walked
// like any other directory. This is implemented by Lstat-ing first and
// only following with Stat when Lstat reports a symlink.
func (p *Pipeline) tryProcessPath() bool {
	path, ok := p.PathQueue.Poll()
	if !ok {
		return false
	}
	defer p.PathQueue.DecrementOutstanding()

	p.stats.scannedPaths.Add(1)
	p.sink.Tick(&p.stats)

	if _, excluded := p.exclude[path]; excluded {
		return true
	}

	info, err := os.Lstat(path)
	if err != nil {
		p.sink.Warn(fmt.Sprintf("%s: %v", path, err))
		return true
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			p.sink.Warn(fmt.Sprintf("%s: %v", path, err))
			return true
		}
		if target.IsDir() {
			p.enumerateDirectory(path)
		}
		// Symlinks to files (or anything else) are skipped outright.
		return true
	}

	switch {
	case info.IsDir():
		p.enumerateDirectory(path)
	case info.Mode().IsRegular():
		p.FileQueue.Insert(path)
	default:
		// Devices, sockets, etc: not something the core walks into or
		// hashes. Quiet mode is implemented by the caller passing
		// console.NewNoop(), not by a check here.
		p.sink.Warn(fmt.Sprintf("%s: skipping non-regular file", path))
	}
	return true
}

// tryProcessFile polls one file path and inserts it into the fingerprint
// database. Returns false only when the queue was empty.
func (p *Pipeline) tryProcessFile() bool {
	path, ok := p.FileQueue.Poll()
	if !ok {
		return false
	}
	defer p.FileQueue.DecrementOutstanding()

	if err := p.db.Insert(path); err != nil {
		p.sink.Warn(fmt.Sprintf("%s: %v", path, err))
		return true
	}
	p.stats.insertedFiles.Add(1)
	p.sink.Tick(&p.stats)
	return true
}

// enumerateDirectory lists path in batches (bounding memory for very
// large directories) and enqueues every non-excluded entry back onto the
// path queue for a worker - possibly this one, possibly another - to
// classify.
func (p *Pipeline) enumerateDirectory(path string) {
	dir, err := os.Open(path)
	if err != nil {
		p.sink.Warn(fmt.Sprintf("%s: %v", path, err))
		return
	}
	defer func() { _ = dir.Close() }()

	for {
		entries, err := dir.ReadDir(dirBatchSize)
		for _, entry := range entries {
			full := filepath.Join(path, entry.Name())
			if _, excluded := p.exclude[full]; excluded {
				continue
			}
			p.PathQueue.Insert(full)
		}
		if err != nil {
			if err != io.EOF {
				p.sink.Warn(fmt.Sprintf("%s: %v", path, err))
			}
			return
		}
		if len(entries) == 0 {
			return
		}
	}
}
