package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chess-vn/slduel/internal/duel"
	"github.com/chess-vn/slduel/internal/hub"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeForbidden    = "FORBIDDEN"
	CodeDuelConflict = "DUEL_CONFLICT"
	CodeBadState     = "BAD_STATE"
	CodeInvalidInput = "INVALID_INPUT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL"
)

type errorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Current  string   `json:"current,omitempty"`
	Expected []string `json:"expected,omitempty"`
}

func errorStatus(err error) (int, errorResponse) {
	var stateErr *duel.StateError
	switch {
	case errors.As(err, &stateErr):
		resp := errorResponse{
			Code:    CodeBadState,
			Message: err.Error(),
			Current: string(stateErr.Current),
		}
		for _, status := range stateErr.Expected {
			resp.Expected = append(resp.Expected, string(status))
		}
		return http.StatusConflict, resp
	case errors.Is(err, duel.ErrDuelNotFound), errors.Is(err, duel.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, duel.ErrForbidden):
		return http.StatusForbidden, errorResponse{Code: CodeForbidden, Message: err.Error()}
	case errors.Is(err, duel.ErrDuelConflict):
		return http.StatusConflict, errorResponse{Code: CodeDuelConflict, Message: err.Error()}
	case errors.Is(err, duel.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Code: CodeInvalidInput, Message: err.Error()}
	}
	return http.StatusInternalServerError, errorResponse{
		Code:    CodeInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorStatus(err)
	if status == http.StatusInternalServerError {
		logging.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to write response", zap.Error(err))
	}
}

// socketErrorCode maps room errors to the code sent in socket error events.
func socketErrorCode(err error) string {
	switch {
	case errors.Is(err, hub.ErrNotMember):
		return CodeForbidden
	case errors.Is(err, hub.ErrInvalidRoom), errors.Is(err, hub.ErrEmptyText):
		return CodeInvalidInput
	}
	return CodeInternal
}
