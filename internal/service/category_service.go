package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// CreateCategoryInput is the body of a category creation request
type CreateCategoryInput struct {
	Name        string                `json:"name" validate:"required,max=100"`
	Description string                `json:"description" validate:"required"`
	Image       string                `json:"image"`
	Attrs       []domain.CategoryAttr `json:"attrs" validate:"omitempty,dive"`
}

// UpdateCategoryInput replaces the provided fields. Attrs given here are an
// explicit edit of the vocabulary.
type UpdateCategoryInput struct {
	Name        *string               `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string               `json:"description" validate:"omitempty,min=1"`
	Image       *string               `json:"image"`
	Attrs       []domain.CategoryAttr `json:"attrs" validate:"omitempty,dive"`
}

// CategoryService defines the category operations
type CategoryService interface {
	List(ctx context.Context, params ListParams) ([]*domain.Category, int, error)
	GetByName(ctx context.Context, name string) (*domain.Category, error)
	Create(ctx context.Context, in CreateCategoryInput) (*domain.Category, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateCategoryInput) (*domain.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type categoryService struct {
	categories repository.CategoryRepository
}

// NewCategoryService creates a new instance of CategoryService
func NewCategoryService(categories repository.CategoryRepository) CategoryService {
	return &categoryService{categories: categories}
}

// List returns every category; categories are few so the listing is not paged
func (s *categoryService) List(ctx context.Context, params ListParams) ([]*domain.Category, int, error) {
	categories, total, err := s.categories.List(ctx, repository.ListOptions{Sort: ParseSort(params.Sort)})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, total, nil
}

func (s *categoryService) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	category, err := s.categories.FindByName(ctx, name)
	if err != nil {
		return nil, categoryError(err)
	}
	return category, nil
}

func (s *categoryService) Create(ctx context.Context, in CreateCategoryInput) (*domain.Category, error) {
	category := &domain.Category{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Image:       in.Image,
		Attrs:       in.Attrs,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

func (s *categoryService) Update(ctx context.Context, id uuid.UUID, in UpdateCategoryInput) (*domain.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, categoryError(err)
	}

	if in.Name != nil {
		category.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		category.Description = *in.Description
	}
	if in.Image != nil {
		category.Image = *in.Image
	}
	if in.Attrs != nil {
		category.Attrs = in.Attrs
	}

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, categoryError(err)
	}
	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return apperror.NotFound("No category found with that ID")
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func categoryError(err error) error {
	if errors.Is(err, repository.ErrCategoryNotFound) {
		return apperror.NotFound("Category not found")
	}
	return fmt.Errorf("failed to load category: %w", err)
}
