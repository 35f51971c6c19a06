package fingerprint

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// PerceptualHash is a 64-bit difference hash (dhash) over an 8x8
// luminance-resampled view of an image. Similarity between two hashes is
// 1 - popcount(a^b)/64.
type PerceptualHash uint64

// hashSide is the edge length of the luminance grid the hash is computed
// over - 8x8 gives the 64 bits of the hash.
const hashSide = 8

// Perceptual decodes the image at path via src and computes its
// difference hash. ok is false if the file did not decode as an image -
// that is a DecodeError per the fingerprint database's insert contract,
// not a hard error: the caller keeps the file with only a content hash.
func Perceptual(src ImageSource, path string) (hash PerceptualHash, ok bool, err error) {
	img, decodeErr := src.Open(path)
	if decodeErr != nil {
		return 0, false, nil
	}
	return FromImage(img), true, nil
}

// FromImage computes the difference hash of an already-decoded image.
// Exposed separately from Perceptual so tests can hash synthetic images
// without touching the filesystem.
func FromImage(img image.Image) PerceptualHash {
	gray := resampleLuminance(img)

	// The initial "previous" pixel is (7,7): the traversal starts at
	// (0,0) comparing against the bottom-right corner before it has
	// visited anything else.
	prev := gray[hashSide-1][hashSide-1]

	var hash PerceptualHash
	for _, p := range boustrophedon() {
		cur := gray[p.y][p.x]

		// Shift-then-set: existing bits move right to make room at the
		// top, then the new comparison bit is OR-ed into bit 63. After
		// all 64 comparisons the first comparison has been shifted down
		// to bit 0 and the last comparison sits at bit 63 - bit 0 holds
		// the first comparison, bit 63 the last, the canonical layout
		// for this hash.
		hash >>= 1
		if prev >= cur {
			hash |= 1 << 63
		}
		prev = cur
	}
	return hash
}

type point struct{ x, y int }

// boustrophedon returns the 64 grid coordinates in row-by-row,
// direction-reversing order: row 0 left-to-right, row 1 right-to-left,
// and so on.
func boustrophedon() []point {
	pts := make([]point, 0, hashSide*hashSide)
	for y := 0; y < hashSide; y++ {
		if y%2 == 0 {
			for x := 0; x < hashSide; x++ {
				pts = append(pts, point{x, y})
			}
		} else {
			for x := hashSide - 1; x >= 0; x-- {
				pts = append(pts, point{x, y})
			}
		}
	}
	return pts
}

// resampleLuminance resizes img to an 8x8 grid with draw.ApproxBiLinear
// and converts each pixel to luminance via the BT.709 coefficients.
func resampleLuminance(img image.Image) [hashSide][hashSide]float64 {
	small := image.NewRGBA(image.Rect(0, 0, hashSide, hashSide))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var out [hashSide][hashSide]float64
	for y := 0; y < hashSide; y++ {
		for x := 0; x < hashSide; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			// RGBA() returns 16-bit-scaled channels; normalize to 8-bit
			// before applying the coefficients.
			rf := float64(r >> 8)
			gf := float64(g >> 8)
			bf := float64(b >> 8)
			out[y][x] = 0.2126*rf + 0.7152*gf + 0.0722*bf
		}
	}
	return out
}

// Similarity returns 1 - popcount(a XOR b)/64, the fraction of matching
// bits between two perceptual hashes.
func Similarity(a, b PerceptualHash) float64 {
	diff := uint64(a ^ b)
	return 1 - float64(bits.OnesCount64(diff))/64
}
