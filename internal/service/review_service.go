package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"
)

// CreateReviewInput is the body of a review creation request
type CreateReviewInput struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"required,min=1,max=1000"`
}

// UpdateReviewInput carries optional replacements for a review
type UpdateReviewInput struct {
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Review *string `json:"review" validate:"omitempty,min=1,max=1000"`
}

// ReviewService defines the review operations. Every write that changes a
// rating also updates the product aggregate under a row lock.
type ReviewService interface {
	ListByProduct(ctx context.Context, productID uuid.UUID, params ListParams) ([]*domain.Review, int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]*domain.Review, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	Create(ctx context.Context, actor *domain.User, productID uuid.UUID, in CreateReviewInput) (*domain.Review, error)
	Update(ctx context.Context, actor *domain.User, id uuid.UUID, in UpdateReviewInput) (*domain.Review, error)
	Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error
	Like(ctx context.Context, actor *domain.User, id uuid.UUID) error
	Unlike(ctx context.Context, actor *domain.User, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

type reviewService struct {
	reviews  repository.ReviewRepository
	products repository.ProductRepository
	tx       database.Transactor
	logger   *zap.Logger
}

// NewReviewService creates a new instance of ReviewService
func NewReviewService(
	reviews repository.ReviewRepository,
	products repository.ProductRepository,
	tx database.Transactor,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{reviews: reviews, products: products, tx: tx, logger: logger}
}

func (s *reviewService) ListByProduct(ctx context.Context, productID uuid.UUID, params ListParams) ([]*domain.Review, int, error) {
	return s.list(ctx, repository.ReviewFilter{ProductID: productID}, params)
}

func (s *reviewService) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]*domain.Review, int, error) {
	return s.list(ctx, repository.ReviewFilter{UserID: userID}, params)
}

func (s *reviewService) list(ctx context.Context, filter repository.ReviewFilter, params ListParams) ([]*domain.Review, int, error) {
	opts := params.options(DefaultReviewLimit)
	reviews, total, err := s.reviews.List(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	if err := params.checkPage(opts, total); err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (s *reviewService) Get(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	review, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return nil, reviewError(err, "Review not found")
	}
	return review, nil
}

func (s *reviewService) Create(ctx context.Context, actor *domain.User, productID uuid.UUID, in CreateReviewInput) (*domain.Review, error) {
	if err := validateRating(in.Rating); err != nil {
		return nil, err
	}

	var created *domain.Review
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.products.LockByID(ctx, productID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return apperror.NotFound("The product for which you want to create a review does not exist")
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		exists, err := s.reviews.ExistsForUser(ctx, actor.ID, productID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("You have already written a review for this product")
		}

		review := &domain.Review{
			ProductID:   product.ID,
			ProductName: product.Name,
			UserID:      actor.ID,
			Rating:      in.Rating,
			Text:        strings.TrimSpace(in.Review),
			WhoLiked:    []uuid.UUID{},
		}
		if err := s.reviews.Create(ctx, review); err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}

		product.AddReviewRating(review.Rating)
		if err := s.products.Update(ctx, product); err != nil {
			return fmt.Errorf("failed to update product rating: %w", err)
		}

		profile := actor.Public()
		review.User = &profile
		created = review
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update lets the author change the rating or text
func (s *reviewService) Update(ctx context.Context, actor *domain.User, id uuid.UUID, in UpdateReviewInput) (*domain.Review, error) {
	if in.Rating != nil {
		if err := validateRating(*in.Rating); err != nil {
			return nil, err
		}
	}

	var updated *domain.Review
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		review, err := s.reviews.LockByID(ctx, id)
		if err != nil {
			return reviewError(err, "Review not found")
		}
		if actor == nil || review.UserID != actor.ID {
			return apperror.Unauthorized("You are not the author of this review")
		}

		if in.Rating != nil && *in.Rating != review.Rating {
			product, err := s.products.LockByID(ctx, review.ProductID)
			if err != nil {
				return productError(err)
			}
			if err := product.UpdateReviewRating(review.Rating, *in.Rating); err != nil {
				return err
			}
			if err := s.products.Update(ctx, product); err != nil {
				return fmt.Errorf("failed to update product rating: %w", err)
			}
			review.Rating = *in.Rating
		}
		if in.Review != nil {
			review.Text = strings.TrimSpace(*in.Review)
		}

		if err := s.reviews.Update(ctx, review); err != nil {
			return reviewError(err, "Review not found")
		}
		updated = review
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a review for its author or an admin
func (s *reviewService) Delete(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		review, err := s.reviews.LockByID(ctx, id)
		if err != nil {
			return reviewError(err, "There is no review with this id")
		}
		if !domain.IsAuthorized(actor, review.UserID) {
			return apperror.Unauthorized("You are not authorized to delete this review")
		}
		return s.remove(ctx, review)
	})
}

// remove drops the review's rating from its product and deletes it. Callers
// hold a transaction.
func (s *reviewService) remove(ctx context.Context, review *domain.Review) error {
	product, err := s.products.LockByID(ctx, review.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return apperror.NotFound("The product with this id does not exist")
		}
		return fmt.Errorf("failed to load product: %w", err)
	}
	if err := product.DeleteReviewRating(review.Rating); err != nil {
		return err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return reviewError(err, "There is no review with this id")
	}
	return nil
}

func (s *reviewService) Like(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	return s.changeLike(ctx, id, func(review *domain.Review) error {
		return review.Like(actor.ID)
	})
}

func (s *reviewService) Unlike(ctx context.Context, actor *domain.User, id uuid.UUID) error {
	return s.changeLike(ctx, id, func(review *domain.Review) error {
		return review.Unlike(actor.ID)
	})
}

func (s *reviewService) changeLike(ctx context.Context, id uuid.UUID, apply func(*domain.Review) error) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		review, err := s.reviews.LockByID(ctx, id)
		if err != nil {
			return reviewError(err, "This review does not exist")
		}
		if err := apply(review); err != nil {
			return err
		}
		if err := s.reviews.Update(ctx, review); err != nil {
			return reviewError(err, "This review does not exist")
		}
		return nil
	})
}

// DeleteByUser removes every review written by userID and takes each rating
// out of its product. Products are locked in id order.
func (s *reviewService) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reviews, _, err := s.reviews.List(ctx, repository.ReviewFilter{UserID: userID}, repository.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list user reviews: %w", err)
		}

		sort.Slice(reviews, func(i, j int) bool {
			return reviews[i].ProductID.String() < reviews[j].ProductID.String()
		})
		for _, review := range reviews {
			if err := s.remove(ctx, review); err != nil {
				return err
			}
		}

		logger.FromContext(ctx, s.logger).Info("Removed reviews of user",
			zap.String("user_id", userID.String()),
			zap.Int("reviews", len(reviews)),
		)
		return nil
	})
}

func validateRating(rating int) error {
	if rating < domain.MinRating || rating > domain.MaxRating {
		return apperror.Validation("Invalid input data",
			apperror.FieldError{Field: "rating", Message: "rating must be between 1 and 5"})
	}
	return nil
}

func reviewError(err error, notFound string) error {
	if errors.Is(err, repository.ErrReviewNotFound) {
		return apperror.NotFound(notFound)
	}
	return fmt.Errorf("failed to load review: %w", err)
}
