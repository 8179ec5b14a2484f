package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/apperror"
)

type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusTransit    OrderStatus = "transit"
	OrderStatusFullfilled OrderStatus = "fullfilled"
)

type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentCashAtDelivery PaymentMethod = "cashAtDelivery"
)

// OrderItem is a snapshot of a product taken when the order was placed
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
}

// CartLine is a requested product and quantity
type CartLine struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// Order represents a customer order
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user"`
	Items           []OrderItem     `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	TotalQuantity   int             `json:"totalQuantity"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Status          OrderStatus     `json:"status"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	DeliveryAddress Address         `json:"deliveryAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MergeCart folds repeated product ids into one line, keeping first-seen order.
func MergeCart(lines []CartLine) []CartLine {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// ComputeTotals recomputes TotalPrice and TotalQuantity from Items.
func (o *Order) ComputeTotals() {
	total := decimal.Zero
	quantity := 0
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		quantity += item.Quantity
	}
	o.TotalPrice = total
	o.TotalQuantity = quantity
}

// MarkPaid records payment. Paying twice keeps the first timestamp.
func (o *Order) MarkPaid(now time.Time) {
	if o.IsPaid {
		return
	}
	o.IsPaid = true
	o.PaidAt = &now
}

// MarkTransit moves a confirmed order into transit.
func (o *Order) MarkTransit() error {
	switch o.Status {
	case OrderStatusConfirmed:
		o.Status = OrderStatusTransit
		return nil
	case OrderStatusTransit:
		return nil
	default:
		return apperror.Precondition("A delivered order cannot be moved back to transit")
	}
}

// MarkDelivered completes the order.
func (o *Order) MarkDelivered(now time.Time) {
	if o.Status == OrderStatusFullfilled {
		return
	}
	o.Status = OrderStatusFullfilled
	o.IsDelivered = true
	o.DeliveredAt = &now
}

// UpdateDeliveryAddress replaces the address while the order is confirmed.
func (o *Order) UpdateDeliveryAddress(addr Address) error {
	if o.Status != OrderStatusConfirmed {
		return apperror.Precondition("The order is already shipped, you cannot update the delivery address")
	}
	o.DeliveryAddress = addr
	return nil
}

// EnsureCancellable fails unless the order can still be deleted
func (o *Order) EnsureCancellable() error {
	if o.Status != OrderStatusConfirmed {
		return apperror.Precondition("The order is already shipped, you cannot cancel it")
	}
	return nil
}
