package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/FairForge/multipath/internal/mapper"
	"github.com/FairForge/multipath/internal/mpath"
	"go.uber.org/zap"
)

// APIError is the JSON body of every failed request
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes
const (
	ErrInvalidRequest = "InvalidRequest"
	ErrNoSuchDevice   = "NoSuchDevice"
	ErrInvalidState   = "InvalidState"
	ErrNoPath         = "NoUsablePath"
	ErrDeviceClosed   = "DeviceClosed"
	ErrOutOfRange     = "OutOfRange"
	ErrTimeout        = "Timeout"
	ErrInternalError  = "InternalError"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// deviceErrorStatus maps a device manager or I/O error to a response
func deviceErrorStatus(err error) (int, string) {
	var msgErr *mpath.MessageError
	switch {
	case errors.Is(err, mapper.ErrDeviceNotFound):
		return http.StatusNotFound, ErrNoSuchDevice
	case errors.Is(err, mpath.ErrInvalidState):
		return http.StatusConflict, ErrInvalidState
	case errors.As(err, &msgErr), errors.Is(err, mpath.ErrInvalidArgument):
		return http.StatusBadRequest, ErrInvalidRequest
	case errors.Is(err, mpath.ErrNoUsablePath):
		return http.StatusServiceUnavailable, ErrNoPath
	case errors.Is(err, mpath.ErrClosed):
		return http.StatusServiceUnavailable, ErrDeviceClosed
	case errors.Is(err, mapper.ErrOutOfRange), errors.Is(err, mpath.ErrMedium):
		return http.StatusRequestedRangeNotSatisfiable, ErrOutOfRange
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, ErrTimeout
	default:
		return http.StatusInternalServerError, ErrInternalError
	}
}

func (s *Server) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := deviceErrorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("device request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, err.Error())
}
