package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"
)

// CreateOrderInput is the body of an order creation request
type CreateOrderInput struct {
	CartItems       []domain.CartLine    `json:"cartItems" validate:"required,min=1,dive"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod" validate:"required,oneof=card cashAtDelivery"`
	DeliveryAddress domain.Address       `json:"deliveryAddress" validate:"required"`
}

// OrderService defines the order workflow
type OrderService interface {
	Create(ctx context.Context, actor *domain.User, in CreateOrderInput) (*domain.Order, error)
	Get(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, actor *domain.User, userID uuid.UUID, params ListParams) ([]*domain.Order, int, error)
	List(ctx context.Context, params ListParams) ([]*domain.Order, int, error)
	UpdateDeliveryAddress(ctx context.Context, actor *domain.User, id uuid.UUID, addr domain.Address) (*domain.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkTransit(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error
}

type orderService struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
	tx       database.Transactor
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	tx database.Transactor,
	logger *zap.Logger,
) OrderService {
	return &orderService{orders: orders, products: products, tx: tx, logger: logger, now: time.Now}
}

// Create places an order. Every product in the cart is locked, checked for
// stock and decremented in one transaction, so a failure leaves stock as it
// was.
func (s *orderService) Create(ctx context.Context, actor *domain.User, in CreateOrderInput) (*domain.Order, error) {
	if len(in.CartItems) == 0 {
		return nil, apperror.Validation("Invalid input data",
			apperror.FieldError{Field: "cartItems", Message: "the cart is empty"})
	}
	lines := domain.MergeCart(in.CartItems)
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, apperror.Validation("Invalid input data",
				apperror.FieldError{Field: "cartItems", Message: "quantity must be at least 1"})
		}
	}

	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	order := &domain.Order{
		UserID:          actor.ID,
		PaymentMethod:   in.PaymentMethod,
		Status:          domain.OrderStatusConfirmed,
		DeliveryAddress: in.DeliveryAddress,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		products, err := s.products.LockMany(ctx, ids)
		if err != nil {
			return err
		}

		var missing []string
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				missing = append(missing, id.String())
			}
		}
		if len(missing) > 0 {
			return apperror.NotFound("Some cart items were not found in the products database: " + strings.Join(missing, ", "))
		}

		for _, line := range lines {
			if p := products[line.ProductID]; p.Count < line.Quantity {
				return &apperror.Error{
					Kind:    apperror.KindConflict,
					Message: "There is not enough stock for a product from the order",
					Fields: []apperror.FieldError{{
						Field:   "cartItems",
						Message: fmt.Sprintf("insufficient stock for %s: %d requested, %d available", p.Name, line.Quantity, p.Count),
					}},
				}
			}
		}

		order.Items = make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			p := products[line.ProductID]
			if err := s.products.ApplySale(ctx, p.ID, line.Quantity); err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ProductID: p.ID,
				Quantity:  line.Quantity,
				Name:      p.Name,
				Price:     p.Price,
				Image:     p.ImageCover,
			})
		}
		order.ComputeTotals()

		if err := s.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", order.UserID.String()),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, actor *domain.User, id uuid.UUID) (*domain.Order, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsAuthorized(actor, order.UserID) {
		return nil, apperror.Unauthorized("You are not authorized to view this order")
	}
	return order, nil
}

func (s *orderService) ListByUser(ctx context.Context, actor *domain.User, userID uuid.UUID, params ListParams) ([]*domain.Order, int, error) {
	if !domain.IsAuthorized(actor, userID) {
		return nil, 0, apperror.Unauthorized("You are not authorized to view these orders")
	}
	return s.list(ctx, repository.OrderFilter{UserID: userID}, params)
}

func (s *orderService) List(ctx context.Context, params ListParams) ([]*domain.Order, int, error) {
	return s.list(ctx, repository.OrderFilter{}, params)
}

func (s *orderService) list(ctx context.Context, filter repository.OrderFilter, params ListParams) ([]*domain.Order, int, error) {
	opts := params.options(DefaultPageLimit)
	orders, total, err := s.orders.List(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := params.checkPage(opts, total); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *orderService) UpdateDeliveryAddress(ctx context.Context, actor *domain.User, id uuid.UUID, addr domain.Address) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		if !domain.IsAuthorized(actor, order.UserID) {
			return apperror.Unauthorized("You are not authorized to update this order")
		}
		return order.UpdateDeliveryAddress(addr)
	})
}

func (s *orderService) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		order.MarkPaid(s.now())
		return nil
	})
}

func (s *orderService) MarkTransit(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		return order.MarkTransit()
	})
}

func (s *orderService) MarkDelivered(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, id, func(order *domain.Order) error {
		order.MarkDelivered(s.now())
		return nil
	})
}

// transition locks an order, applies change and saves the result in one
// transaction, so concurrent lifecycle updates apply one after the other.
func (s *orderService) transition(ctx context.Context, id uuid.UUID, change func(*domain.Order) error) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if err := change(locked); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, locked); err != nil {
			return orderError(err)
		}
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Delete cancels a confirmed order. Stock is not returned.
func (s *orderService) Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		order, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if !domain.IsAuthorized(actor, order.UserID) {
			return apperror.Unauthorized("You are not authorized to delete this order")
		}
		if err := order.EnsureCancellable(); err != nil {
			return err
		}
		if err := s.orders.Delete(ctx, id); err != nil {
			return orderError(err)
		}
		return nil
	})
}

func (s *orderService) lock(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.LockByID(ctx, id)
	if err != nil {
		return nil, orderError(err)
	}
	return order, nil
}

func (s *orderService) find(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, orderError(err)
	}
	return order, nil
}

func orderError(err error) error {
	if errors.Is(err, repository.ErrOrderNotFound) {
		return apperror.NotFound("This order does not exist")
	}
	return fmt.Errorf("failed to load order: %w", err)
}
