package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestContentHashIdenticalBytes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("hello world\nwith newlines\n"))
	b := writeFile(t, dir, "b.bin", []byte("hello world\nwith newlines\n"))

	ha, err := Content(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Content(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatal("byte-identical files produced different content hashes")
	}
}

func TestContentHashDiffersOnNewlines(t *testing.T) {
	// A line-oriented reader that normalizes CRLF/LF would wrongly make
	// these equal; streaming raw bytes must keep them distinct.
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", []byte("line\r\n"))
	b := writeFile(t, dir, "b.bin", []byte("line\n"))

	ha, _ := Content(a)
	hb, _ := Content(b)
	if ha == hb {
		t.Fatal("content hash ignored a newline-byte difference")
	}
}

func TestContentHashEmptyFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "empty.bin", nil)
	h, err := Content(p)
	if err != nil {
		t.Fatal(err)
	}
	// SHA-256 of empty input is a well-known constant.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h.String() != want {
		t.Fatalf("Content(empty) = %s, want %s", h.String(), want)
	}
}

func TestContentHashMissingFile(t *testing.T) {
	if _, err := Content("/does/not/exist"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestPerceptualNonImageNotAnError(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "text.txt", []byte("just some text, not an image"))

	_, ok, err := Perceptual(DefaultImageSource, p)
	if err != nil {
		t.Fatalf("Perceptual returned an error for a non-image: %v", err)
	}
	if ok {
		t.Fatal("Perceptual reported ok=true for a non-image file")
	}
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromImageSolidColorIsAllOnes(t *testing.T) {
	// A uniform image has no gradient: every comparison is prev>=cur, so
	// every bit is 1.
	img := solidImage(64, 64, color.RGBA{128, 128, 128, 255})
	h := FromImage(img)
	if h != ^PerceptualHash(0) {
		t.Fatalf("FromImage(solid) = %064b, want all ones", uint64(h))
	}
}

func TestSimilarityIdentical(t *testing.T) {
	img := solidImage(32, 32, color.RGBA{10, 200, 30, 255})
	h := FromImage(img)
	if s := Similarity(h, h); s != 1.0 {
		t.Fatalf("Similarity(h, h) = %v, want 1.0", s)
	}
}

func TestSimilarityPopcountRelationship(t *testing.T) {
	var a, b PerceptualHash = 0, 0b1111
	got := Similarity(a, b)
	want := 1 - 4.0/64
	if got != want {
		t.Fatalf("Similarity = %v, want %v", got, want)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a := PerceptualHash(0xABCDEF0123456789)
	b := PerceptualHash(0x0011223344556677)
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatal("Similarity is not symmetric")
	}
}

func TestPerceptualDecodesJPEGAndPNG(t *testing.T) {
	dir := t.TempDir()
	img := solidImage(16, 16, color.RGBA{5, 5, 5, 255})

	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, nil); err != nil {
		t.Fatal(err)
	}
	jpegPath := writeFile(t, dir, "a.jpg", jpegBuf.Bytes())

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}
	pngPath := writeFile(t, dir, "a.png", pngBuf.Bytes())

	hj, ok, err := Perceptual(DefaultImageSource, jpegPath)
	if err != nil || !ok {
		t.Fatalf("Perceptual(jpeg) ok=%v err=%v", ok, err)
	}
	hp, ok, err := Perceptual(DefaultImageSource, pngPath)
	if err != nil || !ok {
		t.Fatalf("Perceptual(png) ok=%v err=%v", ok, err)
	}
	// Same solid color in two lossless-enough formats should hash the same.
	if Similarity(hj, hp) < 0.9 {
		t.Fatalf("same solid image decoded from jpeg/png hashed too differently: %v vs %v", hj, hp)
	}
}
