package pcolldb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// countingHasher is a Hasher fake that derives deterministic fingerprints
// from a per-path logical content id (so tests can control which paths
// collide) and counts PerceptualHash invocations.
type countingHasher struct {
	perceptualCalls atomic.Int64
	// contentOf maps a path to a logical content id; paths sharing an id
	// share a content hash. decodable marks which content ids produce a
	// perceptual hash.
	contentOf map[string]string
	decodable map[string]bool
}

func (h *countingHasher) ContentHash(path string) (ContentHash, error) {
	id, ok := h.contentOf[path]
	if !ok {
		return ContentHash{}, fmt.Errorf("no fixture content for %s", path)
	}
	var ch ContentHash
	copy(ch[:], id)
	return ch, nil
}

func (h *countingHasher) PerceptualHash(path string) (PerceptualHash, bool, error) {
	h.perceptualCalls.Add(1)
	id := h.contentOf[path]
	if !h.decodable[id] {
		return 0, false, nil
	}
	// Derive a stable hash from the content id so identical content
	// always hashes identically.
	var v PerceptualHash
	for _, b := range []byte(id) {
		v = v<<8 | PerceptualHash(b)
	}
	return v, true, nil
}

func TestInsertSamePathRepeatedlyInvokesPerceptualHashOnce(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{"/a/x.jpg": "content-A"},
		decodable: map[string]bool{"content-A": true},
	}
	db := NewWithHasher(h)

	for i := 0; i < 100; i++ {
		if err := db.Insert("/a/x.jpg"); err != nil {
			t.Fatal(err)
		}
	}

	if h.perceptualCalls.Load() != 1 {
		t.Fatalf("perceptual hash invoked %d times, want 1", h.perceptualCalls.Load())
	}
	if db.Size() != 100 {
		t.Fatalf("Size() = %d, want 100 (paths entry per insert)", db.Size())
	}

	ch, ok := db.ChashOf("/a/x.jpg")
	if !ok {
		t.Fatal("expected a content hash to be recorded")
	}
	paths := db.PathsWithChash(ch)
	if len(paths) != 1 {
		t.Fatalf("chash bucket has %d distinct paths, want 1", len(paths))
	}
}

func TestInsertDistinctPathsSameContentSharesOneDhashCall(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{
			"/a/x.jpg": "content-A",
			"/a/y.jpg": "content-A",
			"/a/z.jpg": "content-A",
		},
		decodable: map[string]bool{"content-A": true},
	}
	db := NewWithHasher(h)
	for _, p := range []string{"/a/x.jpg", "/a/y.jpg", "/a/z.jpg"} {
		if err := db.Insert(p); err != nil {
			t.Fatal(err)
		}
	}

	if h.perceptualCalls.Load() != 1 {
		t.Fatalf("perceptual hash invoked %d times, want 1", h.perceptualCalls.Load())
	}

	ch, _ := db.ChashOf("/a/x.jpg")
	paths := db.PathsWithChash(ch)
	if len(paths) != 3 {
		t.Fatalf("chash bucket has %d paths, want 3", len(paths))
	}
}

func TestInsertConcurrentSameContentInvokesPerceptualHashOnce(t *testing.T) {
	contentOf := make(map[string]string)
	paths := make([]string, 200)
	for i := range paths {
		p := fmt.Sprintf("/a/file-%d.jpg", i)
		paths[i] = p
		contentOf[p] = "content-A"
	}
	h := &countingHasher{contentOf: contentOf, decodable: map[string]bool{"content-A": true}}
	db := NewWithHasher(h)

	var wg sync.WaitGroup
	wg.Add(len(paths))
	for _, p := range paths {
		go func(p string) {
			defer wg.Done()
			if err := db.Insert(p); err != nil {
				t.Error(err)
			}
		}(p)
	}
	wg.Wait()

	if h.perceptualCalls.Load() != 1 {
		t.Fatalf("perceptual hash invoked %d times under concurrency, want 1", h.perceptualCalls.Load())
	}
	if db.Size() != len(paths) {
		t.Fatalf("Size() = %d, want %d", db.Size(), len(paths))
	}
}

func TestInsertNonDecodableHasNoDhash(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{"/a/text.txt": "content-B"},
		decodable: map[string]bool{"content-B": false},
	}
	db := NewWithHasher(h)
	if err := db.Insert("/a/text.txt"); err != nil {
		t.Fatal(err)
	}

	ch, _ := db.ChashOf("/a/text.txt")
	if _, ok := db.DhashOf(ch); ok {
		t.Fatal("expected no perceptual hash for a non-decodable file")
	}
	hashed := db.DistinctHashedContents()
	if len(hashed) != 0 {
		t.Fatalf("DistinctHashedContents = %v, want empty", hashed)
	}
}

func TestPathToChashInvariant(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{
			"/a/1.jpg": "content-A",
			"/a/2.jpg": "content-B",
		},
		decodable: map[string]bool{"content-A": true, "content-B": true},
	}
	db := NewWithHasher(h)
	for p := range h.contentOf {
		if err := db.Insert(p); err != nil {
			t.Fatal(err)
		}
	}

	for _, p := range db.Paths() {
		ch, ok := db.ChashOf(p)
		if !ok {
			t.Fatalf("path %s missing from path_to_chash", p)
		}
		found := false
		for _, q := range db.PathsWithChash(ch) {
			if q == p {
				found = true
			}
		}
		if !found {
			t.Fatalf("path %s not present in its own chash bucket", p)
		}
	}
}

func TestResetDropsAllIndexes(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{"/a/1.jpg": "content-A"},
		decodable: map[string]bool{"content-A": true},
	}
	db := NewWithHasher(h)
	if err := db.Insert("/a/1.jpg"); err != nil {
		t.Fatal(err)
	}
	db.Reset()

	if db.Size() != 0 {
		t.Fatalf("Size() after reset = %d, want 0", db.Size())
	}
	if _, ok := db.ChashOf("/a/1.jpg"); ok {
		t.Fatal("expected ChashOf to report unknown after reset")
	}
	if len(db.DistinctHashedContents()) != 0 {
		t.Fatal("expected no hashed contents after reset")
	}
}

func TestResetThenReinsertIsIdentical(t *testing.T) {
	h := &countingHasher{
		contentOf: map[string]string{"/a/1.jpg": "content-A", "/a/2.jpg": "content-A"},
		decodable: map[string]bool{"content-A": true},
	}
	db := NewWithHasher(h)
	insertAll := func() {
		for _, p := range []string{"/a/1.jpg", "/a/2.jpg"} {
			if err := db.Insert(p); err != nil {
				t.Fatal(err)
			}
		}
	}

	insertAll()
	firstSize := db.Size()
	ch, _ := db.ChashOf("/a/1.jpg")
	firstDhash, firstOk := db.DhashOf(ch)

	db.Reset()
	insertAll()
	secondSize := db.Size()
	ch2, _ := db.ChashOf("/a/1.jpg")
	secondDhash, secondOk := db.DhashOf(ch2)

	if firstSize != secondSize {
		t.Fatalf("size differs across reset+reinsert: %d vs %d", firstSize, secondSize)
	}
	if firstOk != secondOk || firstDhash != secondDhash {
		t.Fatal("dhash differs across reset+reinsert for identical content")
	}
}
