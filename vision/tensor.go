package vision

import "fmt"

// Tensor is a single image as float32 values in HWC order.
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(height, width, channels int) Tensor {
	return Tensor{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}
}

// Len is the number of elements implied by the shape.
func (t Tensor) Len() int {
	return t.Height * t.Width * t.Channels
}

// Validate checks that the shape is positive and matches the data length.
func (t Tensor) Validate() error {
	if t.Height <= 0 || t.Width <= 0 || t.Channels <= 0 {
		return fmt.Errorf("%w: shape %dx%dx%d", ErrTensorShape, t.Height, t.Width, t.Channels)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: %d values for shape %dx%dx%d", ErrTensorShape, len(t.Data), t.Height, t.Width, t.Channels)
	}
	return nil
}

// Nested returns the tensor as [height][width][channels], the layout JSON
// inference APIs expect.
func (t Tensor) Nested() [][][]float32 {
	out := make([][][]float32, t.Height)
	for y := range out {
		row := make([][]float32, t.Width)
		for x := range row {
			base := (y*t.Width + x) * t.Channels
			row[x] = t.Data[base : base+t.Channels : base+t.Channels]
		}
		out[y] = row
	}
	return out
}

// TensorFromNested flattens a [height][width][channels] array. Every row and
// pixel must have the same length.
func TensorFromNested(v [][][]float32) (Tensor, error) {
	if len(v) == 0 || len(v[0]) == 0 || len(v[0][0]) == 0 {
		return Tensor{}, fmt.Errorf("%w: empty nested tensor", ErrTensorShape)
	}
	t := NewTensor(len(v), len(v[0]), len(v[0][0]))

	idx := 0
	for y, row := range v {
		if len(row) != t.Width {
			return Tensor{}, fmt.Errorf("%w: row %d has %d pixels, want %d", ErrTensorShape, y, len(row), t.Width)
		}
		for x, px := range row {
			if len(px) != t.Channels {
				return Tensor{}, fmt.Errorf("%w: pixel (%d,%d) has %d channels, want %d", ErrTensorShape, x, y, len(px), t.Channels)
			}
			copy(t.Data[idx:], px)
			idx += t.Channels
		}
	}
	return t, nil
}
