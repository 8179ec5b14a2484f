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

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// RegisterRoutes registers all order routes. Ownership checks happen in the
// service, so owner routes only need an authenticated user.
func (h *OrderHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(guards.Auth)

		r.Post("/createOrder", h.Create)
		r.Get("/user/{userId}", h.ListByUser)
		r.Get("/{orderId}", h.Get)
		r.Delete("/{orderId}", h.Delete)
		r.Patch("/{orderId}/updateDeliveryAddress", h.UpdateDeliveryAddress)

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Get("/", h.List)
			r.Patch("/{orderId}/updateOrderToPaid", h.transition(h.orders.MarkPaid))
			r.Patch("/{orderId}/updateOrderToTransit", h.transition(h.orders.MarkTransit))
			r.Patch("/{orderId}/updateOrderToDelivered", h.transition(h.orders.MarkDelivered))
		})
	})
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.CreateOrderInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	order, err := h.orders.Create(r.Context(), actor, in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", actor.ID.String()),
		zap.String("total", order.TotalPrice.StringFixed(2)))
	middleware.RespondWithData(w, http.StatusCreated, order, nil)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "orderId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	order, err := h.orders.Get(r.Context(), actor, id)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, order, nil)
}

func (h *OrderHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
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

	orders, total, err := h.orders.ListByUser(r.Context(), actor, userID, params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, orders, listExtras(len(orders), total))
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	orders, total, err := h.orders.List(r.Context(), params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, orders, listExtras(len(orders), total))
}

func (h *OrderHandler) UpdateDeliveryAddress(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "orderId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var addr domain.Address
	if err := middleware.DecodeAndValidate(r, &addr); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	order, err := h.orders.UpdateDeliveryAddress(r.Context(), actor, id, addr)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, order, nil)
}

func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	id, err := pathUUID(r, "orderId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.orders.Delete(r.Context(), actor, id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Order deleted", zap.String("order_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// transition adapts one of the admin status changes to a handler
func (h *OrderHandler) transition(change func(context.Context, uuid.UUID) (*domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "orderId")
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}

		order, err := change(r.Context(), id)
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}

		h.logger.Info("Order status changed",
			zap.String("order_id", id.String()),
			zap.String("status", string(order.Status)))
		middleware.RespondWithData(w, http.StatusOK, order, nil)
	}
}
