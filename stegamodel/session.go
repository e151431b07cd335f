package stegamodel

import (
	"context"

	"stega_backend/vision"
)

// Slot names a watermark SavedModel exposes in its serving signatures.
const (
	SlotSecret     = "secret"
	SlotImage      = "image"
	SlotStegastamp = "stegastamp"
	SlotResidual   = "residual"
	SlotDecoded    = "decoded"
)

// Signature records which named slots a loaded model exposes.
type Signature struct {
	SecretInput      bool
	ImageInput       bool
	StegastampOutput bool
	ResidualOutput   bool
	DecodedOutput    bool
}

// CanEmbed reports whether the model can watermark an image.
// The residual output is optional.
func (s Signature) CanEmbed() bool {
	return s.SecretInput && s.ImageInput && s.StegastampOutput
}

// CanExtract reports whether the model can read a watermark.
func (s Signature) CanExtract() bool {
	return s.ImageInput && s.DecodedOutput
}

// Session is one loaded model. Implementations need not be safe for
// concurrent use; callers serialize access.
type Session interface {
	// Signature returns the slots this model exposes.
	Signature() Signature

	// Embed runs the encoder on one packet and one normalized image. The
	// residual tensor is empty when the model has no residual output.
	Embed(ctx context.Context, bits []float32, img vision.Tensor) (stego, residual vision.Tensor, err error)

	// Extract runs the decoder and returns one float per packet bit.
	Extract(ctx context.Context, img vision.Tensor) ([]float32, error)

	// Close releases the model. Calls after Close fail with ErrSessionClosed.
	Close() error
}

// Loader opens a model directory as a Session.
type Loader interface {
	Load(ctx context.Context, dir string) (Session, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, dir string) (Session, error)

// Load calls f(ctx, dir).
func (f LoaderFunc) Load(ctx context.Context, dir string) (Session, error) {
	return f(ctx, dir)
}
