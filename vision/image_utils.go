package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrEncodeFailed indicates PNG encoding failed.
var ErrEncodeFailed = errors.New("vision: failed to encode image")

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrEncodeFailed)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d", ErrInvalidDimensions, b.Dx(), b.Dy())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}
