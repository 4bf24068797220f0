package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Handler provides centralized error handling and response formatting
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new error handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// HandleError responds to err with the matching HTTP status and a JSON body
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := h.processError(err)

	h.logError(serviceErr, r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatusCode())

	if err := json.NewEncoder(w).Encode(serviceErr.ToErrorResponse()); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

// processError converts any error to ServiceError
func (h *Handler) processError(err error) *ServiceError {
	if CodeOf(err) != "" {
		return AsServiceError(err)
	}
	return h.classifyError(err)
}

// classifyError converts generic errors to structured ServiceError
func (h *Handler) classifyError(err error) *ServiceError {
	errStr := err.Error()

	if isJSONError(errStr) {
		return NewError(ErrCodeInvalidRequest).
			WithMessage("Invalid JSON in request").
			WithCause(err).
			Build()
	}

	return NewError(ErrCodeInternalError).
		WithSeverity(SeverityHigh).
		WithMessage("Internal server error").
		WithCause(err).
		Build()
}

// logError logs the error with a level derived from its severity
func (h *Handler) logError(serviceErr *ServiceError, r *http.Request) {
	attrs := []slog.Attr{
		slog.String("error_code", string(serviceErr.Code)),
		slog.String("error_category", string(serviceErr.Category)),
		slog.String("error_message", serviceErr.Message),
		slog.String("request_method", r.Method),
		slog.String("request_path", r.URL.Path),
		slog.Int("http_status", serviceErr.HTTPStatusCode()),
	}
	if serviceErr.Cause != nil {
		attrs = append(attrs, slog.String("underlying_error", serviceErr.Cause.Error()))
	}

	h.logger.LogAttrs(context.Background(), h.getLogLevel(serviceErr.Severity), "Request failed", attrs...)
}

// getLogLevel determines appropriate log level based on error severity
func (h *Handler) getLogLevel(severity Severity) slog.Level {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return slog.LevelError
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RecoverMiddleware turns handler panics into INTERNAL_ERROR responses
func (h *Handler) RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.HandleError(w, r, NewError(ErrCodeInternalError).
					WithSeverity(SeverityCritical).
					WithMessage("Panic occurred during request processing").
					WithDetails(formatPanic(rec)).
					Build())
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// isJSONError checks if error is JSON decoding related
func isJSONError(errStr string) bool {
	for _, indicator := range []string{"invalid character", "unexpected EOF", "cannot unmarshal", "json:"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// formatPanic formats panic information for logging
func formatPanic(rec interface{}) string {
	switch v := rec.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
