// Package pcolldb holds the fingerprint database: the index that
// collapses exact duplicates by content hash and records one perceptual
// hash per distinct content for the similarity engine to compare.
//
// # Lifecycle
//
// Entries are created only during intake; the database is never mutated
// once intake has finished draining. The similarity engine reads the
// indexes after that point through the accessors below, each of which
// takes the read side of its index's lock, so concurrent readers never
// contend with one another.
//
// # Locking
//
// chashMu, dhashMu and pathMu are separate locks over independent
// structures to reduce contention between concurrent intake workers;
// Reset takes all three together so a reader can never observe a
// partially torn-down database.
package pcolldb

import (
	"fmt"
	"sync"

	"github.com/tomansill/pcoll/internal/fingerprint"
)

// ContentHash and PerceptualHash are re-exported so callers of this
// package never need to import internal/fingerprint directly.
type ContentHash = fingerprint.ContentHash
type PerceptualHash = fingerprint.PerceptualHash

// Hasher computes the two fingerprints the database keys files by. The
// production implementation is backed by internal/fingerprint; tests
// inject a counting fake to verify the "one perceptual hash call per
// distinct content" invariant without touching real image codecs.
type Hasher interface {
	ContentHash(path string) (ContentHash, error)
	PerceptualHash(path string) (hash PerceptualHash, ok bool, err error)
}

// defaultHasher wires the production fingerprint functions against the
// default image decoder.
type defaultHasher struct{}

func (defaultHasher) ContentHash(path string) (ContentHash, error) {
	return fingerprint.Content(path)
}

func (defaultHasher) PerceptualHash(path string) (PerceptualHash, bool, error) {
	return fingerprint.Perceptual(fingerprint.DefaultImageSource, path)
}

// DefaultHasher is the production Hasher.
var DefaultHasher Hasher = defaultHasher{}

// Database is the fingerprint index. Safe for concurrent Insert calls
// during intake; Size/CompileResults-style readers are safe once intake
// has finished.
type Database struct {
	hasher Hasher

	pathMu sync.RWMutex
	paths  []string // insertion order, for reproducible output ordering

	chashMu      sync.RWMutex
	pathToChash  map[string]ContentHash
	chashToPaths map[ContentHash]map[string]struct{}

	dhashMu      sync.RWMutex
	chashToDhash map[ContentHash]PerceptualHash
}

// New creates an empty database using the production Hasher.
func New() *Database {
	return NewWithHasher(DefaultHasher)
}

// NewWithHasher creates an empty database using a caller-supplied
// Hasher, primarily for tests.
func NewWithHasher(h Hasher) *Database {
	return &Database{
		hasher:       h,
		pathToChash:  make(map[string]ContentHash),
		chashToPaths: make(map[ContentHash]map[string]struct{}),
		chashToDhash: make(map[ContentHash]PerceptualHash),
	}
}

// Insert fingerprints path and records it in every index.
//
// Steps, per the database's contract:
//  1. Compute the content hash (I/O-bound, done outside any lock).
//  2. Under the chash write lock: if this is the first time this content
//     hash has been seen, create its path set; add the path to the set
//     and record path->chash. If the content hash already existed, no
//     perceptual hash is computed for this insert: that is the dedup
//     optimization that makes repeated identical files cheap.
//  3. After releasing the chash lock, the first observer alone tries to
//     compute the perceptual hash and stores it under the dhash lock - on
//     decode failure the hash is simply absent, not an error.
//  4. Append to the path list.
func (db *Database) Insert(path string) error {
	ch, err := db.hasher.ContentHash(path)
	if err != nil {
		return fmt.Errorf("content hash %s: %w", path, err)
	}

	// Claim first-observation status atomically: the map write happens
	// under the same lock acquisition as the existence check, so exactly
	// one concurrent Insert of the same content ever sees first==true,
	// which is what guarantees the perceptual hash runs at most once per
	// distinct content even under concurrent intake workers.
	db.chashMu.Lock()
	paths, exists := db.chashToPaths[ch]
	first := !exists
	if first {
		paths = make(map[string]struct{})
		db.chashToPaths[ch] = paths
	}
	paths[path] = struct{}{}
	db.pathToChash[path] = ch
	db.chashMu.Unlock()

	if first {
		// Decode failures are not errors - the file simply has no
		// perceptual hash and only participates in exact-duplicate
		// detection. Done outside chashMu so a slow image decode never
		// blocks unrelated inserts.
		if dh, ok, perr := db.hasher.PerceptualHash(path); perr == nil && ok {
			db.dhashMu.Lock()
			db.chashToDhash[ch] = dh
			db.dhashMu.Unlock()
		}
	}

	db.pathMu.Lock()
	db.paths = append(db.paths, path)
	db.pathMu.Unlock()

	return nil
}

// Size returns the number of files inserted (not the number of distinct
// contents). It is a pure read - unlike the reference implementation it
// does not mutate any counter as a side effect of being called.
func (db *Database) Size() int {
	db.pathMu.RLock()
	defer db.pathMu.RUnlock()
	return len(db.paths)
}

// Paths returns the inserted paths in insertion order. The returned
// slice is a copy; callers may not mutate the database through it.
func (db *Database) Paths() []string {
	db.pathMu.RLock()
	defer db.pathMu.RUnlock()
	out := make([]string, len(db.paths))
	copy(out, db.paths)
	return out
}

// ChashOf returns the content hash recorded for path, and whether path
// was ever inserted.
func (db *Database) ChashOf(path string) (ContentHash, bool) {
	db.chashMu.RLock()
	defer db.chashMu.RUnlock()
	ch, ok := db.pathToChash[path]
	return ch, ok
}

// PathsWithChash returns every path recorded under a content hash, as a
// copy safe to range over without holding any lock.
func (db *Database) PathsWithChash(ch ContentHash) []string {
	db.chashMu.RLock()
	defer db.chashMu.RUnlock()
	set := db.chashToPaths[ch]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// DhashOf returns the perceptual hash recorded for a content hash, and
// whether one was computed (false if the representative file for that
// content did not decode as an image).
func (db *Database) DhashOf(ch ContentHash) (PerceptualHash, bool) {
	db.dhashMu.RLock()
	defer db.dhashMu.RUnlock()
	dh, ok := db.chashToDhash[ch]
	return dh, ok
}

// DistinctHashedContents returns every content hash that has a perceptual
// hash, in an arbitrary but stable-for-this-call order. This is the
// similarity engine's input set D. Takes the read side of dhashMu while
// copying the keys.
func (db *Database) DistinctHashedContents() []ContentHash {
	db.dhashMu.RLock()
	defer db.dhashMu.RUnlock()
	out := make([]ContentHash, 0, len(db.chashToDhash))
	for ch := range db.chashToDhash {
		out = append(out, ch)
	}
	return out
}

// Reset drops every index. All three locks are acquired together so a
// concurrent reader never observes a database with, say, an emptied
// path list but an intact chash index.
func (db *Database) Reset() {
	db.pathMu.Lock()
	defer db.pathMu.Unlock()
	db.chashMu.Lock()
	defer db.chashMu.Unlock()
	db.dhashMu.Lock()
	defer db.dhashMu.Unlock()

	db.paths = nil
	db.pathToChash = make(map[string]ContentHash)
	db.chashToPaths = make(map[ContentHash]map[string]struct{})
	db.chashToDhash = make(map[ContentHash]PerceptualHash)
}
