package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultMaxPixels bounds the decoded size of an input image.
const DefaultMaxPixels = 40_000_000

// ErrImageTooLarge is returned for images whose dimensions exceed the pixel
// budget, whatever their encoded size.
var ErrImageTooLarge = errors.New("image dimensions too large")

// Processor shrinks images to fit a bounding box and re-encodes them as JPEG.
type Processor struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// MaxPixels caps width*height before decoding; 0 means DefaultMaxPixels.
	MaxPixels int
}

// Process fits data inside MaxWidth x MaxHeight keeping the aspect ratio.
// Smaller images are never enlarged.
func (p Processor) Process(data []byte) ([]byte, error) {
	header, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	maxPixels := p.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(header.Width)*int64(header.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, header.Width, header.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if w, h := fitInside(bounds.Dx(), bounds.Dy(), p.MaxWidth, p.MaxHeight); w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode as jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// fitInside returns the largest size within maxW x maxH with the aspect
// ratio of w x h, or w x h itself when it already fits.
func fitInside(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}

	// compare w/maxW with h/maxH without floating point
	if w*maxH >= h*maxW {
		newH := h * maxW / w
		if newH < 1 {
			newH = 1
		}
		return maxW, newH
	}

	newW := w * maxH / h
	if newW < 1 {
		newW = 1
	}
	return newW, maxH
}
