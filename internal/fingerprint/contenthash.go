// Package fingerprint computes the two fingerprints the rest of the
// pipeline keys files by: a SHA-256 content hash (exact identity) and a
// 64-bit difference hash (perceptual similarity).
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// ContentHash is a SHA-256 digest of a file's raw bytes.
type ContentHash [sha256.Size]byte

// String renders the hash as lowercase hex.
func (h ContentHash) String() string {
	return fmt.Sprintf("%x", [sha256.Size]byte(h))
}

// blockSize is the read buffer used to stream file content into the
// hasher. Reading fixed-size blocks (rather than line-oriented reads)
// is required: line splitting silently drops or rewrites newline bytes
// and would corrupt the digest.
const blockSize = 64 * 1024

// Content computes the SHA-256 digest of path's raw byte content.
func Content(path string) (ContentHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return ContentHash{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return ContentHash{}, fmt.Errorf("read %s: %w", path, err)
	}

	var out ContentHash
	copy(out[:], h.Sum(nil))
	return out, nil
}
