package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/middleware"
	"storefront/internal/storage"
)

// ImageHandler serves stored product and user images
type ImageHandler struct {
	store  storage.ImageStore
	logger *zap.Logger
}

// NewImageHandler creates a new ImageHandler
func NewImageHandler(store storage.ImageStore, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{store: store, logger: logger}
}

// RegisterRoutes registers the image route
func (h *ImageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/images/{ref}", h.Get)
}

func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	obj, err := h.store.Open(r.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			middleware.RespondWithError(w, r, apperror.NotFound("Image not found"))
			return
		}
		middleware.RespondWithError(w, r, apperror.Internal("Something went wrong", err))
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warn("Image transfer interrupted", zap.String("ref", ref), zap.Error(err))
	}
}
