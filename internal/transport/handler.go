// Package transport maps HTTP requests onto the service layer. Handlers
// decode and validate input, call one service operation and render the
// result through the middleware envelope helpers.
package transport

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

// MaxUploadSize bounds the body of multipart requests
const MaxUploadSize = 10 << 20

// Guards bundles the middleware that handlers put in front of protected
// routes.
type Guards struct {
	Auth      func(http.Handler) http.Handler
	Admin     func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
}

func (g Guards) rateLimited() func(http.Handler) http.Handler {
	if g.RateLimit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return g.RateLimit
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return parseUUID(chi.URLParam(r, param), param)
}

func parseUUID(raw, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation(fmt.Sprintf("Invalid %s: %s", label, raw))
	}
	return id, nil
}

func currentUser(r *http.Request) (*domain.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthenticated("You are not logged in! Please log in to get access.")
	}
	return user, nil
}

func listExtras(results, total int) middleware.Extras {
	return middleware.Extras{"results": results, "maxResults": total}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseMultipart reads a multipart body of at most MaxUploadSize bytes
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.Validation("Uploaded files are too large",
				apperror.FieldError{Field: "images", Message: "the request must not exceed 10 MiB"})
		}
		return &apperror.Error{Kind: apperror.KindValidation, Message: "Invalid request body", Err: err}
	}
	return nil
}

// formUploads opens every file sent under field. The returned func closes
// them and must be called once the service is done reading.
func formUploads(r *http.Request, field string) ([]service.Upload, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}

	headers := r.MultipartForm.File[field]
	uploads := make([]service.Upload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Body: f})
	}
	return uploads, closeAll, nil
}

// formString returns the trimmed form value or nil when it is absent or empty
func formString(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

func requestBaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
