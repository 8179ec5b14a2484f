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
	"storefront/internal/storage"
)

// UpdateMyInfoInput lists the profile fields a user may change themselves
type UpdateMyInfoInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=30"`
}

// MyInfo is the profile of the logged in user with the products they reviewed
type MyInfo struct {
	User             *domain.User `json:"user"`
	ProductsReviewed []uuid.UUID  `json:"productsReviewed"`
}

// UserService defines profile and account administration operations
type UserService interface {
	GetMyInfo(ctx context.Context, actor *domain.User) (*MyInfo, error)
	UpdateMyInfo(ctx context.Context, actor *domain.User, in UpdateMyInfoInput, photo *Upload) (*domain.User, error)
	AddAddress(ctx context.Context, actor *domain.User, addr domain.Address) (*domain.User, error)
	DeleteAddress(ctx context.Context, actor *domain.User, addressID uuid.UUID) (*domain.User, error)
	DeleteMe(ctx context.Context, actor *domain.User) error
	GetPublic(ctx context.Context, id uuid.UUID) (*domain.PublicProfile, error)
	List(ctx context.Context, params ListParams) ([]*domain.User, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userService struct {
	users   repository.UserRepository
	reviews repository.ReviewRepository
	cascade ReviewService
	images  storage.ImageStore
	tx      database.Transactor
	logger  *zap.Logger
	now     func() time.Time
}

// NewUserService creates a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	reviews repository.ReviewRepository,
	cascade ReviewService,
	images storage.ImageStore,
	tx database.Transactor,
	logger *zap.Logger,
) UserService {
	return &userService{
		users:   users,
		reviews: reviews,
		cascade: cascade,
		images:  images,
		tx:      tx,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *userService) GetMyInfo(ctx context.Context, actor *domain.User) (*MyInfo, error) {
	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	reviews, _, err := s.reviews.List(ctx, repository.ReviewFilter{UserID: user.ID}, repository.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	reviewed := make([]uuid.UUID, len(reviews))
	for i, r := range reviews {
		reviewed[i] = r.ProductID
	}
	return &MyInfo{User: user, ProductsReviewed: reviewed}, nil
}

func (s *userService) UpdateMyInfo(ctx context.Context, actor *domain.User, in UpdateMyInfoInput, photo *Upload) (*domain.User, error) {
	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if photo != nil {
		ref, err := saveImage(ctx, s.images, "user-"+user.ID.String(), -1, *photo, s.now())
		if err != nil {
			return nil, err
		}
		user.Photo = ref
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, userError(err)
	}
	return user, nil
}

func (s *userService) AddAddress(ctx context.Context, actor *domain.User, addr domain.Address) (*domain.User, error) {
	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	user.SavedAddresses = append(user.SavedAddresses, domain.SavedAddress{ID: uuid.New(), Address: addr})
	if err := s.users.Update(ctx, user); err != nil {
		return nil, userError(err)
	}
	return user, nil
}

func (s *userService) DeleteAddress(ctx context.Context, actor *domain.User, addressID uuid.UUID) (*domain.User, error) {
	user, err := s.load(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if !user.RemoveAddress(addressID) {
		return nil, apperror.NotFound("There is no saved address with this Id")
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, userError(err)
	}
	return user, nil
}

func (s *userService) DeleteMe(ctx context.Context, actor *domain.User) error {
	return s.Delete(ctx, actor.ID)
}

// GetPublic returns the profile other users are allowed to see
func (s *userService) GetPublic(ctx context.Context, id uuid.UUID) (*domain.PublicProfile, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := user.Public()
	return &profile, nil
}

func (s *userService) List(ctx context.Context, params ListParams) ([]*domain.User, int, error) {
	opts := params.options(DefaultPageLimit)
	users, total, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	if err := params.checkPage(opts, total); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.load(ctx, id)
}

// Delete removes a user together with their reviews, taking each review out
// of its product's rating first. Orders are kept.
func (s *userService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.cascade.DeleteByUser(ctx, id); err != nil {
			return err
		}
		if err := s.users.Delete(ctx, id); err != nil {
			return userError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx, s.logger).Info("User deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *userService) load(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, userError(err)
	}
	return user, nil
}

func userError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperror.NotFound("This user does not exist")
	}
	return fmt.Errorf("failed to load user: %w", err)
}
