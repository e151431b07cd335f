package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image preprocessing errors
var (
	ErrInvalidImage      = errors.New("vision: invalid image data")
	ErrInvalidDimensions = errors.New("vision: invalid dimensions")
	ErrEmptyImage        = errors.New("vision: empty image data")
	ErrTensorShape       = errors.New("vision: tensor shape mismatch")
	ErrImageTooLarge     = errors.New("vision: image too large")
)

// ModelSize is the square edge, in pixels, of the watermark model input.
const ModelSize = 400

// DecodeImage decodes a PNG, JPEG, GIF, BMP, TIFF or WebP image. The header
// is read first and images over maxPixels are refused before any raster is
// allocated. A maxPixels of zero or less disables the check.
func DecodeImage(r io.ReadSeeker, maxPixels int64) (image.Image, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if size == 0 {
		return nil, ErrEmptyImage
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// ConvertToRGB returns an opaque copy of img. Alpha is dropped rather than
// composited, so a half-transparent red pixel becomes fully red.
// This is a pure function with no side effects.
func ConvertToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgba.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}

	return rgba
}

// FitResize scales img to cover width x height while preserving aspect
// ratio, cropping the excess equally from both sides. Scaling uses the
// Catmull-Rom bicubic kernel.
func FitResize(img image.Image, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidDimensions, width, height)
	}
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("%w: source %dx%d", ErrInvalidDimensions, srcW, srcH)
	}

	crop := centerCrop(bounds, float64(width)/float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst, nil
}

// centerCrop returns the largest centered rectangle of bounds with the given aspect ratio.
func centerCrop(bounds image.Rectangle, aspect float64) image.Rectangle {
	srcW, srcH := bounds.Dx(), bounds.Dy()
	srcAspect := float64(srcW) / float64(srcH)

	if srcAspect > aspect {
		cropW := int(math.Round(float64(srcH) * aspect))
		if cropW < 1 {
			cropW = 1
		}
		x0 := bounds.Min.X + (srcW-cropW)/2
		return image.Rect(x0, bounds.Min.Y, x0+cropW, bounds.Max.Y)
	}

	cropH := int(math.Round(float64(srcW) / aspect))
	if cropH < 1 {
		cropH = 1
	}
	y0 := bounds.Min.Y + (srcH-cropH)/2
	return image.Rect(bounds.Min.X, y0, bounds.Max.X, y0+cropH)
}

// Normalize converts img to the model input tensor: opaque RGB, fit-resized
// to ModelSize x ModelSize, each 8-bit channel divided by 255.
func Normalize(img image.Image) (Tensor, error) {
	fitted, err := FitResize(ConvertToRGB(img), ModelSize, ModelSize)
	if err != nil {
		return Tensor{}, err
	}
	return TensorFromRGBA(fitted), nil
}

// TensorFromRGBA scales the RGB channels of an opaque image into [0, 1].
// Output layout is HWC.
func TensorFromRGBA(img *image.RGBA) Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := NewTensor(height, width, 3)

	idx := 0
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4:]
			t.Data[idx] = float32(px[0]) / 255.0
			t.Data[idx+1] = float32(px[1]) / 255.0
			t.Data[idx+2] = float32(px[2]) / 255.0
			idx += 3
		}
	}

	return t
}

// Denormalize maps a tensor back to an 8-bit image: each value has offset
// added, is multiplied by 255, clamped to [0, 255] and truncated. Single
// channel tensors become grayscale.
func Denormalize(t Tensor, offset float32) (*image.NRGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Channels != 1 && t.Channels != 3 {
		return nil, fmt.Errorf("%w: %d channels, want 1 or 3", ErrTensorShape, t.Channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			base := (y*t.Width + x) * t.Channels
			px := img.Pix[y*img.Stride+x*4:]
			if t.Channels == 1 {
				v := toByte(t.Data[base] + offset)
				px[0], px[1], px[2] = v, v, v
			} else {
				px[0] = toByte(t.Data[base] + offset)
				px[1] = toByte(t.Data[base+1] + offset)
				px[2] = toByte(t.Data[base+2] + offset)
			}
			px[3] = 255
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	scaled := v * 255
	switch {
	case scaled <= 0 || scaled != scaled:
		return 0
	case scaled >= 255:
		return 255
	default:
		return uint8(scaled)
	}
}
