// Package imaging implements the ImageCodec port: decode raw captured
// bytes into a pixel image, resize with a selectable filter, and
// encode to JPEG at a given quality.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Filter selects the resampling algorithm used when resizing a decoded
// frame to the current ScaledDims.
type Filter int

const (
	// FilterBilinear is used under normal load.
	FilterBilinear Filter = iota
	// FilterNearest is used when avgProcessing is "slow" — it is cheaper
	// than bilinear at the cost of visual smoothness.
	FilterNearest
)

// Decode wraps raw captured bytes (tightly packed RGBA pixels, as a
// ScreenSource returns them) in an image.Image of width x height.
func Decode(raw []byte, width, height int) (image.Image, error) {
	// ScreenSource ports hand back tightly packed RGBA pixels rather
	// than a container format; wrap them directly instead of
	// round-tripping through an encoder.
	if len(raw) != width*height*4 {
		return nil, fmt.Errorf("imaging: raw frame length %d does not match %dx%d RGBA", len(raw), width, height)
	}
	img := &image.RGBA{
		Pix:    raw,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	return img, nil
}

// Resize scales src to exactly width x height using the requested
// filter. Returns src unchanged (as an image.Image) when its bounds
// already match the target dimensions.
func Resize(src image.Image, width, height int, filter Filter) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	var scaler draw.Interpolator = draw.BiLinear
	if filter == FilterNearest {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality. progressive is always
// false, chroma subsampling is always on, and fast-entropy coding is
// always on — image/jpeg's encoder has no progressive mode, uses 4:2:0
// subsampling for color images, and always writes the standard
// (non-optimized, i.e. "fast") Huffman tables; jpeg.Options exposes
// only Quality, so no other option is set.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
