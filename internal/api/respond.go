package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"auctionchess/internal/errs"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// statusFor maps an error kind to the HTTP status reported to clients.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindIllegalMove:
		return http.StatusBadRequest
	case errs.KindState:
		return http.StatusConflict
	case errs.KindPermission:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindResource:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports a classified error. Unclassified errors are logged and
// hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	if kind == errs.KindUnknown {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeErrorCode(w, statusFor(kind), errs.CodeOf(err), err.Error())
}
