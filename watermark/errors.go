package watermark

import (
	"errors"

	"stega_backend/packet"
)

// Service errors. All returned errors wrap one of these for errors.Is.
var (
	// ErrInvalidMessage indicates a message the codec cannot pack.
	ErrInvalidMessage = packet.ErrInvalidMessage

	// ErrModelLoad indicates the model at the requested path could not be loaded.
	ErrModelLoad = errors.New("model load failed")

	// ErrModelNotReady indicates the loaded model lacks the slots an operation needs.
	ErrModelNotReady = errors.New("model not ready")

	// ErrClosed indicates use of the service after Close.
	ErrClosed = errors.New("watermark service closed")
)
