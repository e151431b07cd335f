// Package watermark hides short messages in images and reveals them again
// using one shared watermark model.
//
// The Service owns the model session. Every load, embed and extract runs
// under a single mutex, so at most one model operation is in flight and a
// model switch can never happen in the middle of another caller's inference.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"stega_backend/logging"
	"stega_backend/packet"
	"stega_backend/stegamodel"
	"stega_backend/vision"
)

// ResidualOffset re-centers the signed residual into displayable range.
const ResidualOffset = 0.5

// HideResult holds the images produced by Hide.
type HideResult struct {
	Stego    *image.NRGBA // watermarked image
	Raw      *image.NRGBA // normalized input as the model saw it
	Residual *image.NRGBA // nil when the model has no residual output
	Model    string       // base name of the model directory
	Metrics  logging.OperationMetrics
}

// RevealResult is the outcome of Reveal. Found is false when no valid
// message could be recovered; that is an expected result, not an error.
type RevealResult struct {
	Message string
	Found   bool
	Model   string
	Metrics logging.OperationMetrics
}

// Status is a point-in-time view of the service.
type Status struct {
	ModelPath string
	Loaded    bool
	Loads     int64
	Signature stegamodel.Signature
	LoadedAt  time.Time

	// Title and Description come from the model manifest, when the
	// session has one.
	Title       string
	Description string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service serializes access to one loaded model.
type Service struct {
	loader stegamodel.Loader
	codec  *packet.Codec
	logger *logging.Logger

	// mu guards every field below and is held across load and inference.
	mu        sync.Mutex
	session   stegamodel.Session
	modelPath string
	closed    bool

	// statusMu guards status so it can be read while mu is held.
	statusMu sync.RWMutex
	status   Status
}

// New creates a Service. No model is loaded until the first call.
func New(loader stegamodel.Loader, codec *packet.Codec, opts ...Option) (*Service, error) {
	if loader == nil {
		return nil, errors.New("watermark: loader is required")
	}
	if codec == nil {
		return nil, errors.New("watermark: codec is required")
	}

	s := &Service{
		loader: loader,
		codec:  codec,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureLoaded makes path the loaded model. It is a no-op when path is
// already loaded.
func (s *Service) EnsureLoaded(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoadedLocked(ctx, path)
}

// Hide embeds message into img using the model at path.
func (s *Service) Hide(ctx context.Context, path string, img image.Image, message string) (*HideResult, error) {
	timer := logging.StartOperation("hide", modelName(path))

	s.mu.Lock()
	defer s.mu.Unlock()
	timer.Acquired()

	result, err := s.hideLocked(ctx, path, img, message)
	m := timer.Stop(err == nil, false)
	if err != nil {
		s.logger.Warn("hide failed", logging.OperationFields(m), zap.Error(err))
		return nil, err
	}

	result.Metrics = m
	s.logger.Info("hide complete", logging.OperationFields(m))
	return result, nil
}

func (s *Service) hideLocked(ctx context.Context, path string, img image.Image, message string) (*HideResult, error) {
	if err := s.ensureLoadedLocked(ctx, path); err != nil {
		return nil, err
	}
	if !s.session.Signature().CanEmbed() {
		return nil, fmt.Errorf("%w: %s has no secret/image inputs or stegastamp output", ErrModelNotReady, modelName(path))
	}

	tensor, err := vision.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w", err)
	}

	bits, err := s.codec.EncodePacket(message)
	if err != nil {
		return nil, err
	}

	stego, residual, err := s.session.Embed(context.WithoutCancel(ctx), packet.FloatsFromBits(bits), tensor)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	result := &HideResult{Model: modelName(path)}
	if result.Stego, err = vision.Denormalize(stego, 0); err != nil {
		return nil, fmt.Errorf("stego output: %w", err)
	}
	if result.Raw, err = vision.Denormalize(tensor, 0); err != nil {
		return nil, fmt.Errorf("raw image: %w", err)
	}
	if residual.Len() > 0 {
		if result.Residual, err = vision.Denormalize(residual, ResidualOffset); err != nil {
			return nil, fmt.Errorf("residual output: %w", err)
		}
	}
	return result, nil
}

// Reveal extracts a message from img using the model at path.
func (s *Service) Reveal(ctx context.Context, path string, img image.Image) (*RevealResult, error) {
	timer := logging.StartOperation("reveal", modelName(path))

	s.mu.Lock()
	defer s.mu.Unlock()
	timer.Acquired()

	result, err := s.revealLocked(ctx, path, img)
	if err != nil {
		m := timer.Stop(false, false)
		s.logger.Warn("reveal failed", logging.OperationFields(m), zap.Error(err))
		return nil, err
	}

	result.Metrics = timer.Stop(true, result.Found)
	s.logger.Info("reveal complete", logging.OperationFields(result.Metrics))
	return result, nil
}

func (s *Service) revealLocked(ctx context.Context, path string, img image.Image) (*RevealResult, error) {
	if err := s.ensureLoadedLocked(ctx, path); err != nil {
		return nil, err
	}
	if !s.session.Signature().CanExtract() {
		return nil, fmt.Errorf("%w: %s has no decoded output", ErrModelNotReady, modelName(path))
	}

	tensor, err := vision.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w", err)
	}

	values, err := s.session.Extract(context.WithoutCancel(ctx), tensor)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	result := &RevealResult{Model: modelName(path)}
	result.Message, result.Found = s.codec.DecodePacket(packet.BitsFromFloats(values))
	return result, nil
}

func (s *Service) ensureLoadedLocked(ctx context.Context, path string) error {
	if s.closed {
		return ErrClosed
	}
	if s.session != nil && s.modelPath == path {
		return nil
	}

	if s.session != nil {
		s.releaseLocked()
	}

	start := time.Now()
	sess, err := s.loader.Load(context.WithoutCancel(ctx), path)
	if err != nil {
		s.logger.Error("model load failed", zap.String("dir", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrModelLoad, path, err)
	}

	s.session = sess
	s.modelPath = path

	s.statusMu.Lock()
	s.status.ModelPath = path
	s.status.Loaded = true
	s.status.Loads++
	s.status.Signature = sess.Signature()
	s.status.LoadedAt = time.Now()
	manifest, _ := stegamodel.ManifestOf(sess)
	s.status.Title = manifest.Name
	s.status.Description = manifest.Description
	loads := s.status.Loads
	s.statusMu.Unlock()

	s.logger.Info("model loaded",
		zap.String("dir", path),
		zap.Int64("loads", loads),
		zap.Bool("can_embed", sess.Signature().CanEmbed()),
		zap.Bool("can_extract", sess.Signature().CanExtract()),
		zap.Duration("load_time", time.Since(start)),
	)
	return nil
}

func (s *Service) releaseLocked() {
	if err := s.session.Close(); err != nil {
		s.logger.Warn("model close failed", zap.String("dir", s.modelPath), zap.Error(err))
	} else {
		s.logger.Info("model unloaded", zap.String("dir", s.modelPath))
	}
	s.session = nil
	s.modelPath = ""

	s.statusMu.Lock()
	s.status.ModelPath = ""
	s.status.Loaded = false
	s.status.Signature = stegamodel.Signature{}
	s.status.Title = ""
	s.status.Description = ""
	s.statusMu.Unlock()
}

// ModelPath returns the loaded model path, empty when none is loaded.
func (s *Service) ModelPath() string {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status.ModelPath
}

// Loads returns how many times a model has been loaded.
func (s *Service) Loads() int64 {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status.Loads
}

// Status returns a snapshot without waiting for in-flight operations.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Close unloads the model. Later calls fail with ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.session != nil {
		s.releaseLocked()
	}
	return nil
}

func modelName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(path))
}
