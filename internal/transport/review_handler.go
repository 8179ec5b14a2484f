package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

// ReviewHandler handles HTTP requests for product reviews
type ReviewHandler struct {
	reviews service.ReviewService
	logger  *zap.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviews service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// RegisterRoutes registers all review routes
func (h *ReviewHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/reviews", func(r chi.Router) {
		r.Get("/product/{productId}", h.ListByProduct)
		r.Get("/user/{userId}", h.ListByUser)
		r.Get("/{reviewId}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(guards.Auth)
			r.Post("/product/{productId}/createReview", h.Create)
			r.Post("/{reviewId}/like", h.Like)
			r.Delete("/{reviewId}/like", h.Unlike)
			r.Patch("/{reviewId}", h.Update)
			r.Delete("/{reviewId}", h.Delete)
		})
	})
}

func (h *ReviewHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "productId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	reviews, total, err := h.reviews.ListByProduct(r.Context(), productID, params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, reviews, listExtras(len(reviews), total))
}

func (h *ReviewHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	reviews, total, err := h.reviews.ListByUser(r.Context(), userID, params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, reviews, listExtras(len(reviews), total))
}

func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "reviewId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	review, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, review, nil)
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	productID, err := pathUUID(r, "productId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.CreateReviewInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	review, err := h.reviews.Create(r.Context(), actor, productID, in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Review created",
		zap.String("review_id", review.ID.String()),
		zap.String("product_id", productID.String()))
	middleware.RespondWithData(w, http.StatusCreated, review, nil)
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "reviewId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.UpdateReviewInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	review, err := h.reviews.Update(r.Context(), actor, id, in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, review, nil)
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "reviewId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.reviews.Delete(r.Context(), actor, id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, h.reviews.Like, "Review liked")
}

func (h *ReviewHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.changeLike(w, r, h.reviews.Unlike, "Review unliked")
}

type likeFunc func(ctx context.Context, actor *domain.User, id uuid.UUID) error

func (h *ReviewHandler) changeLike(w http.ResponseWriter, r *http.Request, apply likeFunc, message string) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "reviewId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := apply(r.Context(), actor, id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":  middleware.StatusSuccess,
		"message": message,
	})
}
