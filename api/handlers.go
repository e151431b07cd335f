package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stega_backend/core"
	"stega_backend/db"
	"stega_backend/metrics"
	"stega_backend/shutdown"
	"stega_backend/stegamodel"
	"stega_backend/vision"
	"stega_backend/watermark"
)

// messagePattern is the only message shape the HTTP API accepts.
var messagePattern = regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

const (
	// multipartMemory is how much of an upload stays in memory; the rest
	// spills to temporary files.
	multipartMemory = 8 << 20

	// maxHistoryLimit caps ?limit= on /api/v1/history.
	maxHistoryLimit = 500

	errNoWatermark = "no watermark found"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := stegamodel.ListModels(s.config.ModelsDir)
	if err != nil {
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

// operation collects what is known about one encode or decode so it can be
// recorded however the request ends.
type operation struct {
	name       string
	start      time.Time
	model      string
	message    string
	found      bool
	lockWait   time.Duration
	imageBytes int64
	err        error
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	op := &operation{name: metrics.OperationEncode, start: time.Now()}
	defer func() { s.record(r.Context(), op) }()

	form, status, detail := s.parseForm(w, r)
	if form == nil {
		op.err = errors.New(detail)
		s.writeDetail(w, status, detail)
		return
	}
	defer form.RemoveAll()

	message, ok := formValue(form, "message")
	if !ok {
		op.err = errors.New("field required: message")
		s.writeDetail(w, http.StatusUnprocessableEntity, op.err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		op.err = errors.New("field required: image")
		s.writeDetail(w, http.StatusUnprocessableEntity, op.err.Error())
		return
	}
	defer file.Close()
	op.imageBytes = header.Size
	op.message = message

	if !messagePattern.MatchString(message) {
		op.err = errors.New("message must be 7 alphanumeric chars")
		s.writeDetail(w, http.StatusBadRequest, op.err.Error())
		return
	}

	modelDir, err := s.resolveModel(form)
	if err != nil {
		op.err = err
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	op.model = filepath.Base(modelDir)

	img, err := vision.DecodeImage(file, s.config.MaxImagePixels)
	if err != nil {
		op.err = fmt.Errorf("decode image: %w", err)
		s.writeDetail(w, decodeImageStatus(err), "encode failed: "+op.err.Error())
		return
	}

	result, err := s.watermark.Hide(r.Context(), modelDir, img, message)
	if err != nil {
		op.err = err
		status := http.StatusInternalServerError
		if errors.Is(err, watermark.ErrInvalidMessage) {
			status = http.StatusBadRequest
		}
		s.writeDetail(w, status, "encode failed: "+err.Error())
		return
	}
	op.lockWait = result.Metrics.LockWait

	body, err := vision.EncodePNG(result.Stego)
	if err != nil {
		op.err = err
		s.writeDetail(w, http.StatusInternalServerError, "encode failed: "+op.err.Error())
		return
	}

	if s.config.DebugSave {
		if err := s.saveDebugImages(debugStem(header.Filename), result); err != nil {
			s.logger.Warn("Failed to save debug images",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("dir", s.config.TmpDir),
				zap.Error(err),
			)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("X-Model-Used", result.Model)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	op := &operation{name: metrics.OperationDecode, start: time.Now()}
	defer func() { s.record(r.Context(), op) }()

	form, status, detail := s.parseForm(w, r)
	if form == nil {
		op.err = errors.New(detail)
		s.writeDetail(w, status, detail)
		return
	}
	defer form.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		op.err = errors.New("field required: image")
		s.writeDetail(w, http.StatusUnprocessableEntity, op.err.Error())
		return
	}
	defer file.Close()
	op.imageBytes = header.Size

	modelDir, err := s.resolveModel(form)
	if err != nil {
		op.err = err
		s.writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	op.model = filepath.Base(modelDir)

	img, err := vision.DecodeImage(file, s.config.MaxImagePixels)
	if err != nil {
		op.err = fmt.Errorf("decode image: %w", err)
		s.writeDetail(w, decodeImageStatus(err), "decode failed: "+op.err.Error())
		return
	}

	result, err := s.watermark.Reveal(r.Context(), modelDir, img)
	if err != nil {
		op.err = err
		s.writeDetail(w, http.StatusInternalServerError, "decode failed: "+err.Error())
		return
	}
	op.lockWait = result.Metrics.LockWait
	op.found = result.Found

	if !result.Found {
		msg := errNoWatermark
		s.writeJSON(w, http.StatusOK, decodeResponse{Success: false, Error: &msg})
		return
	}
	op.message = result.Message
	s.writeJSON(w, http.StatusOK, decodeResponse{
		Success: true,
		Data:    &decodeData{Message: result.Message, ModelUsed: result.Model},
	})
}

// statusResponse is the body of /api/v1/status.
type statusResponse struct {
	System       metrics.SystemStatus      `json:"system"`
	Model        metrics.ModelStatus       `json:"model"`
	Serving      metrics.ServingStatus     `json:"serving"`
	Operations   metrics.OperationMetrics  `json:"operations"`
	Recent       []metrics.OperationRecord `json:"recent"`
	History      []db.OperationCount       `json:"history,omitempty"`
	EventClients int                       `json:"event_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.refreshModelStatus()

	resp := statusResponse{
		System:       s.metrics.GetSystemStatus(),
		Model:        s.metrics.GetModelStatus(),
		Serving:      s.metrics.GetServingStatus(),
		Operations:   s.metrics.GetOperationMetrics(),
		Recent:       s.metrics.GetRecentOperations(10),
		EventClients: s.events.ClientCount(),
	}
	if s.history != nil {
		counts, err := s.history.CountByOperation(r.Context())
		if err != nil {
			s.logger.Warn("Failed to count history", zap.Error(err))
		} else {
			resp.History = counts
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeDetail(w, http.StatusNotFound, "history is disabled")
		return
	}

	query := r.URL.Query()
	limit := db.DefaultQueryLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.writeDetail(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	var (
		records []db.OperationRecord
		err     error
	)
	switch op := query.Get("operation"); {
	case query.Get("request_id") != "":
		records, err = s.history.QueryByRequestID(r.Context(), query.Get("request_id"))
	case op == db.OperationEncode || op == db.OperationDecode:
		records, err = s.history.QueryByOperation(r.Context(), op, limit)
	case op != "":
		s.writeDetail(w, http.StatusBadRequest, "operation must be encode or decode")
		return
	default:
		records, err = s.history.QueryRecent(r.Context(), limit)
	}
	if err != nil {
		s.writeDetail(w, http.StatusInternalServerError, "history query failed: "+err.Error())
		return
	}
	if records == nil {
		records = []db.OperationRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]db.OperationRecord{"records": records})
}

// decodeImageStatus maps an upload decode error to a response status.
func decodeImageStatus(err error) int {
	if errors.Is(err, vision.ErrImageTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// parseForm reads the multipart body within the upload limit. On failure
// it returns a nil form with the status and detail to reply with.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge,
				"upload exceeds " + core.FormatBytes(s.config.MaxUploadBytes)
		}
		return nil, http.StatusBadRequest, "invalid multipart form: " + err.Error()
	}
	return r.MultipartForm, 0, ""
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (s *Server) resolveModel(form *multipart.Form) (string, error) {
	name, _ := formValue(form, "model")
	return stegamodel.ResolveModelDir(s.config.ModelsDir, name, s.config.ModelDir)
}

// record reports a finished operation to metrics, the event feed and the
// history store.
func (s *Server) record(ctx context.Context, op *operation) {
	requestID := RequestIDFrom(ctx)
	rec := metrics.OperationRecord{
		RequestID: requestID,
		Operation: op.name,
		Model:     op.model,
		Status:    metrics.StatusSuccess,
		Found:     op.found,
		Timestamp: time.Now(),
		Duration:  time.Since(op.start),
		LockWait:  op.lockWait,
	}
	if op.err != nil {
		rec.Status = metrics.StatusError
		rec.ErrorMsg = op.err.Error()
	}

	s.metrics.RecordOperation(rec)
	s.refreshModelStatus()
	s.events.PublishOperation(rec)

	if s.history == nil {
		return
	}
	_, err := s.history.InsertOperation(context.WithoutCancel(ctx), db.OperationRecord{
		RequestID:    requestID,
		Operation:    op.name,
		Model:        op.model,
		Message:      op.message,
		Found:        op.found,
		Status:       rec.Status,
		ErrorMessage: rec.ErrorMsg,
		DurationMS:   rec.Duration.Milliseconds(),
		LockWaitMS:   rec.LockWait.Milliseconds(),
		ImageBytes:   op.imageBytes,
	})
	if err != nil {
		s.logger.Warn("Failed to record operation history",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

func (s *Server) refreshModelStatus() {
	st := s.watermark.Status()
	ms := metrics.ModelStatus{
		Path:        st.ModelPath,
		Title:       st.Title,
		Description: st.Description,
		Loaded:      st.Loaded,
		Loads:       st.Loads,
		CanEmbed:    st.Signature.CanEmbed(),
		CanReveal:   st.Signature.CanExtract(),
		LoadedAt:    st.LoadedAt,
	}
	if st.ModelPath != "" {
		ms.Name = filepath.Base(st.ModelPath)
	}
	s.metrics.UpdateModelStatus(ms)
}

// debugStem returns the debug-save file prefix for an upload, derived from
// its file name. Uploads without a name use "upload".
func debugStem(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "upload"
	}
	return stem
}

// saveDebugImages writes {stem}_raw.png, {stem}_hidden.png and, when the
// model produced one, {stem}_residual.png.
func (s *Server) saveDebugImages(stem string, result *watermark.HideResult) error {
	if err := os.MkdirAll(s.config.TmpDir, 0o755); err != nil {
		return err
	}

	outputs := map[string]image.Image{
		"raw":    result.Raw,
		"hidden": result.Stego,
	}
	if result.Residual != nil {
		outputs["residual"] = result.Residual
	}

	for suffix, img := range outputs {
		path := filepath.Join(s.config.TmpDir, stem+"_"+suffix+".png")
		if err := writePNGAtomic(path, img); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// writePNGAtomic writes through a partial file so readers never see a
// truncated image. Leftover partial files are removed at startup and
// shutdown.
func writePNGAtomic(path string, img image.Image) error {
	f, err := os.CreateTemp(filepath.Dir(path), shutdown.PartialFilePattern)
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
