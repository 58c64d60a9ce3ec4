package server

import (
	"errors"
	"net/http"
	"strings"

	"autoservice/internal/util"
	"autoservice/pkg/domain"
)

type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	RequestID string         `json:"requestId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: errorCodeForStatus(status, msg)})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	resp.RequestID = strings.TrimSpace(w.Header().Get(util.RequestIDHeader))
	writeJSON(w, status, resp)
}

// writeAppError renders an app error. Store failures are logged and
// reported without their cause.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindStoreFailure {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeErrorResponse(w, http.StatusInternalServerError, errorResponse{
			Error: "internal error",
			Code:  "SYSTEM_INTERNAL_ERROR",
		})
		return
	}
	status, code := statusForDomainError(de)
	resp := errorResponse{Error: de.Error(), Code: code}
	switch de.Kind {
	case domain.KindValidation:
		resp.Details = map[string]any{"field": de.Field}
	case domain.KindBrandMismatch:
		resp.Details = map[string]any{"brand": de.Brand, "allowed": de.Allowed}
	case domain.KindCapacityExceeded:
		resp.Details = map[string]any{"total": de.WouldBe, "limit": de.Limit}
	}
	writeErrorResponse(w, status, resp)
}

func statusForDomainError(de *domain.Error) (int, string) {
	switch de.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound, strings.ToUpper(de.Entity) + "_NOT_FOUND"
	case domain.KindValidation:
		return http.StatusBadRequest, "SHOP_INVALID_REQUEST"
	case domain.KindBrandMismatch:
		return http.StatusBadRequest, "TASK_BRAND_MISMATCH"
	case domain.KindCapacityExceeded:
		return http.StatusBadRequest, "TASK_CAPACITY_EXCEEDED"
	case domain.KindConflict:
		return http.StatusConflict, strings.ToUpper(de.Entity) + "_ALREADY_EXISTS"
	default:
		return http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	}
}

func errorCodeForStatus(status int, msg string) string {
	switch strings.ToLower(strings.TrimSpace(msg)) {
	case "invalid json body":
		return "SHOP_INVALID_REQUEST"
	case "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case "not found":
		return "SYSTEM_NOT_FOUND"
	case "too many requests":
		return "SYSTEM_RATE_LIMITED"
	}
	switch status {
	case http.StatusBadRequest:
		return "SHOP_INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
