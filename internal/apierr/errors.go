package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"dfsgate/internal/ranges"
	"dfsgate/internal/router"
	"dfsgate/internal/storage"
)

type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e APIError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	NotFound            = APIError{Code: "NotFound", Message: "The requested file does not exist or is not a plain file.", StatusCode: http.StatusNotFound}
	RangeNotSatisfiable = APIError{Code: "RangeNotSatisfiable", Message: "The requested range is not satisfiable.", StatusCode: http.StatusRequestedRangeNotSatisfiable}
	MethodNotAllowed    = APIError{Code: "MethodNotAllowed", Message: "The specified method is not allowed against this resource.", StatusCode: http.StatusMethodNotAllowed}
	RequestTimeout      = APIError{Code: "RequestTimeout", Message: "The request was canceled before a response could be produced.", StatusCode: http.StatusRequestTimeout}
	InternalError       = APIError{Code: "InternalError", Message: "We encountered an internal error. Please try again.", StatusCode: http.StatusInternalServerError}
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Resource  string `json:"resource,omitempty"`
	RequestID string `json:"request_id"`
}

func Write(w http.ResponseWriter, requestID string, apiErr APIError, resource string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(apiErr.StatusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  resource,
		RequestID: requestID,
	})
}

func MapError(err error) APIError {
	var apiErr APIError
	switch {
	case err == nil:
		return InternalError
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrNotAFile),
		errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, router.ErrOutsideBasePath),
		errors.Is(err, router.ErrInvalidPath):
		return NotFound
	case errors.Is(err, ranges.ErrMalformedSyntax), errors.Is(err, ranges.ErrUnsatisfiable):
		return RangeNotSatisfiable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RequestTimeout
	default:
		return InternalError
	}
}
