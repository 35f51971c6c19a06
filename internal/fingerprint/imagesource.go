package fingerprint

import (
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoding
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoding
	_ "golang.org/x/image/tiff" // register TIFF decoding
	_ "golang.org/x/image/webp" // register WebP decoding
)

// ImageSource is the narrow capability the perceptual hasher needs from
// an image decoding library: turn a path into a decoded image, or fail.
// Keeping this interface separate from the hashing algorithm means the
// algorithm itself never knows which concrete decoder ran.
type ImageSource interface {
	Open(path string) (image.Image, error)
}

// stdImageSource decodes via image.Decode against whichever format
// decoder package is registered by blank import above - stdlib covers
// JPEG/PNG/GIF, golang.org/x/image covers BMP/TIFF/WebP.
type stdImageSource struct{}

// DefaultImageSource is the production ImageSource, backed by every
// decoder registered in this package.
var DefaultImageSource ImageSource = stdImageSource{}

func (stdImageSource) Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
