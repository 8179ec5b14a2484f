package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"

	"storefront/internal/apperror"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/storage"
)

// CreateProductInput is the body of a product creation request
type CreateProductInput struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Description string               `json:"description" validate:"required"`
	Count       int                  `json:"count" validate:"gte=0"`
	Price       decimal.Decimal      `json:"price"`
	Category    string               `json:"category" validate:"required"`
	Attrs       []domain.ProductAttr `json:"attrs" validate:"dive"`
}

// UpdateProductInput carries a partial product update. Nil fields are left
// unchanged; a nil Attrs keeps the current attributes.
type UpdateProductInput struct {
	Name        *string              `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description" validate:"omitempty,min=1"`
	Count       *int                 `json:"count" validate:"omitempty,gte=0"`
	Price       *decimal.Decimal     `json:"price"`
	Category    *string              `json:"category" validate:"omitempty,min=1"`
	Attrs       []domain.ProductAttr `json:"attrs" validate:"omitempty,dive"`
}

// ProductService defines the catalogue operations
type ProductService interface {
	List(ctx context.Context, q ProductQuery) ([]domain.Product, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Create(ctx context.Context, in CreateProductInput, images []Upload) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateProductInput, images []Upload) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Export(ctx context.Context, w io.Writer) error
}

type productService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	reviews    repository.ReviewRepository
	images     storage.ImageStore
	tx         database.Transactor
	now        func() time.Time
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	reviews repository.ReviewRepository,
	images storage.ImageStore,
	tx database.Transactor,
) ProductService {
	return &productService{
		products:   products,
		categories: categories,
		reviews:    reviews,
		images:     images,
		tx:         tx,
		now:        time.Now,
	}
}

// List returns one page of listing rows and the number of matching products
func (s *productService) List(ctx context.Context, q ProductQuery) ([]domain.Product, int, error) {
	opts := q.options(DefaultPageLimit)
	products, total, err := s.products.List(ctx, q.Filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	if err := q.checkPage(opts, total); err != nil {
		return nil, 0, err
	}

	rows := make([]domain.Product, len(products))
	for i, p := range products {
		rows[i] = p.Listing()
	}
	return rows, total, nil
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, productError(err)
	}
	return product, nil
}

// Create stores a product and grows its category's attribute vocabulary in
// the same transaction.
func (s *productService) Create(ctx context.Context, in CreateProductInput, images []Upload) (*domain.Product, error) {
	if in.Price.IsNegative() {
		return nil, apperror.Validation("Invalid input data",
			apperror.FieldError{Field: "price", Message: "price must not be negative"})
	}

	product := &domain.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    in.Category,
		Count:       in.Count,
		Price:       in.Price,
		Attrs:       in.Attrs,
		ImageCover:  domain.DefaultImageCover,
	}
	if err := s.attachImages(ctx, product, images); err != nil {
		return nil, err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.reconcileCategory(ctx, product); err != nil {
			return err
		}
		if err := s.products.Create(ctx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Update applies a partial update and reconciles the attributes against the
// product's category, which may have just changed.
func (s *productService) Update(ctx context.Context, id uuid.UUID, in UpdateProductInput, images []Upload) (*domain.Product, error) {
	if in.Price != nil && in.Price.IsNegative() {
		return nil, apperror.Validation("Invalid input data",
			apperror.FieldError{Field: "price", Message: "price must not be negative"})
	}

	var updated *domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.products.LockByID(ctx, id)
		if err != nil {
			return productError(err)
		}

		if in.Name != nil {
			product.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			product.Description = *in.Description
		}
		if in.Count != nil {
			product.Count = *in.Count
		}
		if in.Price != nil {
			product.Price = *in.Price
		}
		if in.Category != nil {
			product.Category = *in.Category
		}
		if in.Attrs != nil {
			product.Attrs = in.Attrs
		}
		if err := s.attachImages(ctx, product, images); err != nil {
			return err
		}

		if err := s.reconcileCategory(ctx, product); err != nil {
			return err
		}
		if err := s.products.Update(ctx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the product's reviews and then the product
func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.LockByID(ctx, id); err != nil {
			return productError(err)
		}
		if err := s.reviews.DeleteByProduct(ctx, id); err != nil {
			return fmt.Errorf("failed to delete product reviews: %w", err)
		}
		if err := s.products.Delete(ctx, id); err != nil {
			return productError(err)
		}
		return nil
	})
}

var exportHeaders = []string{
	"ID", "Name", "Category", "Price", "Count", "Sales", "Rating", "ReviewsNumber", "Attributes",
}

// Export writes the whole catalogue as an xlsx workbook
func (s *productService) Export(ctx context.Context, w io.Writer) error {
	products, _, err := s.products.List(ctx, repository.ProductFilter{},
		repository.ListOptions{Sort: []repository.SortField{{Field: "name"}}})
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetValue(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID.String())
		row.AddCell().SetValue(p.Name)
		row.AddCell().SetValue(p.Category)
		row.AddCell().SetValue(p.Price.StringFixed(2))
		row.AddCell().SetInt(p.Count)
		row.AddCell().SetInt(p.Sales)
		row.AddCell().SetFloat(p.Rating)
		row.AddCell().SetInt(p.ReviewsNumber)
		row.AddCell().SetValue(formatAttrs(p.Attrs))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func formatAttrs(attrs []domain.ProductAttr) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.Key + "=" + a.Value
	}
	return strings.Join(parts, "; ")
}

// reconcileCategory locks the product's category, folds the product
// attributes into its vocabulary and saves it when it grew.
func (s *productService) reconcileCategory(ctx context.Context, product *domain.Product) error {
	category, err := s.categories.LockByName(ctx, product.Category)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return apperror.Validation("Category does not exist",
				apperror.FieldError{Field: "category", Message: fmt.Sprintf("no category named %q", product.Category)})
		}
		return fmt.Errorf("failed to load category: %w", err)
	}

	reconciled := domain.ReconcileAttributes(product.Attrs, category.Attrs)
	if vocabularySize(reconciled) == vocabularySize(category.Attrs) {
		return nil
	}
	category.Attrs = reconciled
	if err := s.categories.Update(ctx, category); err != nil {
		return fmt.Errorf("failed to update category attributes: %w", err)
	}
	return nil
}

// vocabularySize counts keys and values. Reconciliation only ever adds, so an
// unchanged size means an unchanged vocabulary.
func vocabularySize(attrs []domain.CategoryAttr) int {
	n := len(attrs)
	for _, a := range attrs {
		n += len(a.Values)
	}
	return n
}

// attachImages stores uploads. The last file becomes the cover and the rest
// form the gallery.
func (s *productService) attachImages(ctx context.Context, product *domain.Product, images []Upload) error {
	if len(images) == 0 {
		return nil
	}

	now := s.now()
	refs := make([]string, 0, len(images))
	for i, up := range images {
		ref, err := saveImage(ctx, s.images, "product", i, up, now)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	product.ImageCover = refs[len(refs)-1]
	product.Images = refs[:len(refs)-1]
	return nil
}

func productError(err error) error {
	if errors.Is(err, repository.ErrProductNotFound) {
		return apperror.NotFound("Product not found")
	}
	return fmt.Errorf("failed to load product: %w", err)
}
