package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperror"
	"storefront/internal/domain"
)

func TestReviewRepository_OnePerUserAndProduct(t *testing.T) {
	requireDB(t)
	users := NewUserRepository(testDB)
	products := NewProductRepository(testDB)
	reviews := NewReviewRepository(testDB)
	ctx := context.Background()

	author := newTestUser(t, users)
	product := newTestProduct(t, products, "Phones", 3, "20")

	first := &domain.Review{ProductID: product.ID, ProductName: product.Name, UserID: author.ID, Rating: 4, Text: "Solid"}
	require.NoError(t, reviews.Create(ctx, first))

	exists, err := reviews.ExistsForUser(ctx, author.ID, product.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	second := &domain.Review{ProductID: product.ID, ProductName: product.Name, UserID: author.ID, Rating: 2, Text: "Again"}
	err = reviews.Create(ctx, second)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	found, err := products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, found.Reviews)
}

func TestReviewRepository_RatingOutOfRangeIsValidation(t *testing.T) {
	requireDB(t)
	users := NewUserRepository(testDB)
	products := NewProductRepository(testDB)
	reviews := NewReviewRepository(testDB)

	author := newTestUser(t, users)
	product := newTestProduct(t, products, "Phones", 3, "20")

	err := reviews.Create(context.Background(), &domain.Review{
		ProductID: product.ID, ProductName: product.Name, UserID: author.ID, Rating: 9, Text: "Too much",
	})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestReviewRepository_ListEmbedsAuthorAndLikes(t *testing.T) {
	requireDB(t)
	users := NewUserRepository(testDB)
	products := NewProductRepository(testDB)
	reviews := NewReviewRepository(testDB)
	ctx := context.Background()

	author := newTestUser(t, users)
	liker := newTestUser(t, users)
	product := newTestProduct(t, products, "Phones", 3, "20")

	review := &domain.Review{ProductID: product.ID, ProductName: product.Name, UserID: author.ID, Rating: 5, Text: "Great"}
	require.NoError(t, reviews.Create(ctx, review))
	require.NoError(t, review.Like(liker.ID))
	require.NoError(t, reviews.Update(ctx, review))

	list, total, err := reviews.List(ctx, ReviewFilter{ProductID: product.ID}, ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	got := list[0]
	require.NotNil(t, got.User)
	assert.Equal(t, author.Name, got.User.Name)
	assert.Equal(t, 1, got.Likes)
	assert.Equal(t, []uuid.UUID{liker.ID}, got.WhoLiked)

	byUser, total, err := reviews.List(ctx, ReviewFilter{UserID: author.ID}, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, byUser, 1)
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	requireDB(t)
	orders := NewOrderRepository(testDB)
	ctx := context.Background()

	order := &domain.Order{
		UserID: uuid.New(),
		Items: []domain.OrderItem{
			{ProductID: uuid.New(), Quantity: 2, Name: "Phone", Image: "phone.jpg"},
		},
		PaymentMethod:   domain.PaymentCard,
		Status:          domain.OrderStatusConfirmed,
		DeliveryAddress: domain.Address{ContactName: "Ana", ContactPhoneNumber: "0700", DeliveryLocation: "Main St"},
	}
	order.ComputeTotals()
	require.NoError(t, orders.Create(ctx, order))

	require.NoError(t, order.MarkTransit())
	require.NoError(t, orders.Update(ctx, order))

	locked, err := orders.LockByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusTransit, locked.Status)

	found, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusTransit, found.Status)
	assert.Equal(t, order.Items[0].Name, found.Items[0].Name)
	assert.Equal(t, order.DeliveryAddress, found.DeliveryAddress)

	list, total, err := orders.List(ctx, OrderFilter{UserID: order.UserID}, ListOptions{Limit: 16})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	require.NoError(t, orders.Delete(ctx, order.ID))
	_, err = orders.FindByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderRepository_RejectsUnknownPaymentMethod(t *testing.T) {
	requireDB(t)
	orders := NewOrderRepository(testDB)

	order := &domain.Order{
		UserID:        uuid.New(),
		Items:         []domain.OrderItem{{ProductID: uuid.New(), Quantity: 1}},
		PaymentMethod: "bitcoin",
		Status:        domain.OrderStatusConfirmed,
	}
	err := orders.Create(context.Background(), order)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
