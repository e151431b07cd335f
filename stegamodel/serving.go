package stegamodel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"stega_backend/vision"
)

// maxErrorBody caps how much of a failed response is kept for the error text.
const maxErrorBody = 4 << 10

// ServingConfig configures the TensorFlow Serving REST backend.
type ServingConfig struct {
	// BaseURL is the REST endpoint, e.g. http://127.0.0.1:8501.
	BaseURL string

	// HTTPClient is used for all requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Defaults to 60 seconds.
	Timeout time.Duration
}

// ServingLoader loads models that TensorFlow Serving hosts from the same
// directories. The directory is validated locally; inference runs remotely.
type ServingLoader struct {
	baseURL string
	client  *http.Client
}

// NewServingLoader creates a loader for the given endpoint.
func NewServingLoader(cfg ServingConfig) (*ServingLoader, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("stegamodel: serving URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("stegamodel: invalid serving URL %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &ServingLoader{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}, nil
}

// Load validates dir, reads its manifest and asks the server which slots
// the model's signatures expose.
func (l *ServingLoader) Load(ctx context.Context, dir string) (Session, error) {
	if err := ValidateModelDir(dir); err != nil {
		return nil, err
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, wrapErr("load", dir, ErrModelLoadFailed, err)
	}

	s := &servingSession{
		client:   l.client,
		modelURL: l.baseURL + "/v1/models/" + url.PathEscape(manifest.ServingModel),
		dir:      dir,
		manifest: manifest,
	}

	defs, err := s.fetchSignatures(ctx)
	if err != nil {
		return nil, wrapErr("load", dir, ErrModelLoadFailed, err)
	}

	enc, hasEnc := defs[manifest.EncodeSignature]
	dec, hasDec := defs[manifest.DecodeSignature]
	if !hasEnc && !hasDec {
		return nil, wrapErr("load", dir, ErrSignatureMissing,
			fmt.Errorf("signatures %q and %q not exposed", manifest.EncodeSignature, manifest.DecodeSignature))
	}

	s.sig = Signature{
		SecretInput:      enc.hasInput(SlotSecret),
		ImageInput:       enc.hasInput(SlotImage) || dec.hasInput(SlotImage),
		StegastampOutput: enc.hasOutput(SlotStegastamp) && enc.hasInput(SlotImage),
		ResidualOutput:   enc.hasOutput(SlotResidual),
		DecodedOutput:    dec.hasOutput(SlotDecoded) && dec.hasInput(SlotImage),
	}
	if !s.sig.CanEmbed() && !s.sig.CanExtract() {
		return nil, wrapErr("load", dir, ErrSignatureMissing, fmt.Errorf("neither embed nor extract is possible"))
	}

	return s, nil
}

// ManifestOf returns the manifest of a session that carries one.
func ManifestOf(sess Session) (Manifest, bool) {
	d, ok := sess.(interface{ Manifest() Manifest })
	if !ok {
		return Manifest{}, false
	}
	return d.Manifest(), true
}

var _ Loader = (*ServingLoader)(nil)

type servingSession struct {
	client   *http.Client
	modelURL string
	dir      string
	manifest Manifest
	sig      Signature
	closed   atomic.Bool
}

func (s *servingSession) Manifest() Manifest { return s.manifest }

type signatureDef struct {
	Inputs     map[string]json.RawMessage `json:"inputs"`
	Outputs    map[string]json.RawMessage `json:"outputs"`
	MethodName string                     `json:"method_name"`
}

func (d signatureDef) hasInput(name string) bool {
	_, ok := d.Inputs[name]
	return ok
}

func (d signatureDef) hasOutput(name string) bool {
	_, ok := d.Outputs[name]
	return ok
}

type metadataResponse struct {
	Metadata struct {
		SignatureDef struct {
			SignatureDef map[string]signatureDef `json:"signature_def"`
		} `json:"signature_def"`
	} `json:"metadata"`
}

type predictRequest struct {
	SignatureName string         `json:"signature_name"`
	Inputs        map[string]any `json:"inputs"`
}

type predictResponse struct {
	Outputs json.RawMessage `json:"outputs"`
}

func (s *servingSession) Signature() Signature {
	return s.sig
}

func (s *servingSession) Embed(ctx context.Context, bits []float32, img vision.Tensor) (vision.Tensor, vision.Tensor, error) {
	if s.closed.Load() {
		return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrSessionClosed, nil)
	}
	if !s.sig.CanEmbed() {
		return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrSignatureMissing, nil)
	}
	if err := img.Validate(); err != nil {
		return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrInferenceFailed, err)
	}

	outputs, err := s.predict(ctx, s.manifest.EncodeSignature, map[string]any{
		SlotSecret: [][]float32{bits},
		SlotImage:  [][][][]float32{img.Nested()},
	}, SlotStegastamp)
	if err != nil {
		return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrInferenceFailed, err)
	}

	stego, err := firstImage(outputs[SlotStegastamp])
	if err != nil {
		return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrBadOutput, fmt.Errorf("%s: %v", SlotStegastamp, err))
	}

	var residual vision.Tensor
	if raw, ok := outputs[SlotResidual]; ok && s.sig.ResidualOutput {
		residual, err = firstImage(raw)
		if err != nil {
			return vision.Tensor{}, vision.Tensor{}, wrapErr("embed", s.dir, ErrBadOutput, fmt.Errorf("%s: %v", SlotResidual, err))
		}
	}

	return stego, residual, nil
}

func (s *servingSession) Extract(ctx context.Context, img vision.Tensor) ([]float32, error) {
	if s.closed.Load() {
		return nil, wrapErr("extract", s.dir, ErrSessionClosed, nil)
	}
	if !s.sig.CanExtract() {
		return nil, wrapErr("extract", s.dir, ErrSignatureMissing, nil)
	}
	if err := img.Validate(); err != nil {
		return nil, wrapErr("extract", s.dir, ErrInferenceFailed, err)
	}

	outputs, err := s.predict(ctx, s.manifest.DecodeSignature, map[string]any{
		SlotImage: [][][][]float32{img.Nested()},
	}, SlotDecoded)
	if err != nil {
		return nil, wrapErr("extract", s.dir, ErrInferenceFailed, err)
	}

	var batch [][]float32
	if err := json.Unmarshal(outputs[SlotDecoded], &batch); err != nil {
		return nil, wrapErr("extract", s.dir, ErrBadOutput, fmt.Errorf("%s: %v", SlotDecoded, err))
	}
	if len(batch) == 0 || len(batch[0]) == 0 {
		return nil, wrapErr("extract", s.dir, ErrBadOutput, fmt.Errorf("%s: empty batch", SlotDecoded))
	}
	return batch[0], nil
}

func (s *servingSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.CloseIdleConnections()
	return nil
}

func (s *servingSession) fetchSignatures(ctx context.Context) (map[string]signatureDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.modelURL+"/metadata", nil)
	if err != nil {
		return nil, err
	}

	var meta metadataResponse
	if err := s.do(req, &meta); err != nil {
		return nil, err
	}
	defs := meta.Metadata.SignatureDef.SignatureDef
	if len(defs) == 0 {
		return nil, errors.New("metadata lists no signatures")
	}
	return defs, nil
}

// predict posts a columnar request. A signature with a single output comes
// back as a bare value; it is keyed under single so callers see one shape.
func (s *servingSession) predict(ctx context.Context, signature string, inputs map[string]any, single string) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(predictRequest{SignatureName: signature, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.modelURL+":predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp predictResponse
	if err := s.do(req, &resp); err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(resp.Outputs)
	if len(raw) == 0 {
		return nil, errors.New("response has no outputs")
	}
	if raw[0] != '{' {
		return map[string]json.RawMessage{single: raw}, nil
	}

	var outputs map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	if _, ok := outputs[single]; !ok {
		return nil, fmt.Errorf("output %q missing", single)
	}
	return outputs, nil
}

func (s *servingSession) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(msg, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("serving returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("serving returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstImage(raw json.RawMessage) (vision.Tensor, error) {
	var batch [][][][]float32
	if err := json.Unmarshal(raw, &batch); err != nil {
		return vision.Tensor{}, err
	}
	if len(batch) == 0 {
		return vision.Tensor{}, errors.New("empty batch")
	}
	return vision.TensorFromNested(batch[0])
}
