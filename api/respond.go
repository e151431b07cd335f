package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Detail string `json:"detail"`
}

// decodeData is the payload of a successful decode.
type decodeData struct {
	Message   string `json:"message"`
	ModelUsed string `json:"model_used"`
}

// decodeResponse is the body of /api/v1/decode. Exactly one of Data and
// Error is set.
type decodeResponse struct {
	Success bool        `json:"success"`
	Data    *decodeData `json:"data"`
	Error   *string     `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}
