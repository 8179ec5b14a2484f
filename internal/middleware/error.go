package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/logger"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// ErrorResponse is the failure envelope. Stack and Cause are only filled in
// development, and Stack only for errors that recorded one.
type ErrorResponse struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
	Cause   string                `json:"cause,omitempty"`
	Stack   string                `json:"stack,omitempty"`
}

// Extras are top-level keys merged into a success envelope next to data
type Extras map[string]any

type rendererKey struct{}

// ErrorRenderer turns errors into failure envelopes
type ErrorRenderer struct {
	logger      *zap.Logger
	development bool
}

func NewErrorRenderer(logger *zap.Logger, development bool) *ErrorRenderer {
	return &ErrorRenderer{logger: logger, development: development}
}

var defaultRenderer = NewErrorRenderer(zap.NewNop(), false)

// Render writes err as a failure envelope with the status of its kind.
// Errors that are not *apperror.Error are treated as internal.
func (e *ErrorRenderer) Render(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = &apperror.Error{Kind: apperror.KindInternal, Message: "Something went wrong", Err: err}
	}

	log := logger.FromContext(r.Context(), e.logger)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("kind", appErr.Kind.String()),
		zap.Error(err),
	}
	if appErr.Operational() {
		log.Debug("Request failed", fields...)
	} else {
		log.Error("Request failed", fields...)
	}

	status := appErr.StatusCode()
	resp := ErrorResponse{
		Status:  statusWord(status),
		Message: appErr.Message,
		Errors:  appErr.Fields,
	}
	if e.development {
		resp.Cause = err.Error()
		resp.Stack = appErr.Stack
	} else if !appErr.Operational() {
		resp.Message = "Something went wrong"
		resp.Errors = nil
	}

	RespondWithJSON(w, status, resp)
}

// Errors installs the renderer for the request and turns panics into
// internal errors.
func Errors(renderer *ErrorRenderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(context.WithValue(r.Context(), rendererKey{}, renderer))
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					renderer.Render(w, r, apperror.Internal("Something went wrong", fmt.Errorf("panic: %v", rec)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithError renders err through the renderer installed by Errors
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	renderer, ok := r.Context().Value(rendererKey{}).(*ErrorRenderer)
	if !ok {
		renderer = defaultRenderer
	}
	renderer.Render(w, r, err)
}

// RespondWithData writes a success envelope
func RespondWithData(w http.ResponseWriter, statusCode int, data any, extras Extras) {
	body := make(map[string]any, len(extras)+2)
	for k, v := range extras {
		body[k] = v
	}
	body["status"] = StatusSuccess
	body["data"] = data
	RespondWithJSON(w, statusCode, body)
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithFailure(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, ErrorResponse{Status: statusWord(statusCode), Message: message})
}

func statusWord(statusCode int) string {
	if statusCode >= 500 {
		return StatusError
	}
	return StatusFail
}
