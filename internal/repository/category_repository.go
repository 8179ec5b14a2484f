package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/database"
	"storefront/internal/domain"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
)

var categorySortColumns = map[string]string{
	"name":        "name",
	"description": "description",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

var defaultCategorySort = []SortField{{Field: "name"}}

// CategoryRepository defines the interface for category data access
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	FindByName(ctx context.Context, name string) (*domain.Category, error)
	LockByName(ctx context.Context, name string) (*domain.Category, error)
	List(ctx context.Context, opts ListOptions) ([]*domain.Category, int, error)
}

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryColumns = `id, name, description, image, attrs, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	c := &domain.Category{}
	var attrs []byte
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Image, &attrs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := scanJSON(attrs, &c.Attrs); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	attrs, err := jsonArg(category.Attrs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	category.CreatedAt, category.UpdatedAt = now, now

	query := `
		INSERT INTO categories (id, name, description, image, attrs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = database.Conn(ctx, r.db).ExecContext(ctx, query,
		category.ID, category.Name, category.Description, category.Image, attrs,
		category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", translate(err))
	}
	return nil
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	attrs, err := jsonArg(category.Attrs)
	if err != nil {
		return err
	}
	category.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE categories
		SET name = $2, description = $3, image = $4, attrs = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		category.ID, category.Name, category.Description, category.Image, attrs, category.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", translate(err))
	}
	return expectRow(result, ErrCategoryNotFound)
}

func (r *categoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", translate(err))
	}
	return expectRow(result, ErrCategoryNotFound)
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *categoryRepository) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	return r.findOne(ctx, "name = $1", name)
}

// LockByName locks the category row for vocabulary updates
func (r *categoryRepository) LockByName(ctx context.Context, name string) (*domain.Category, error) {
	return r.findOne(ctx, "name = $1 FOR UPDATE", name)
}

func (r *categoryRepository) findOne(ctx context.Context, cond string, arg any) (*domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE %s`, categoryColumns, cond)

	category, err := scanCategory(database.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category: %w", translate(err))
	}
	return category, nil
}

func (r *categoryRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Category, int, error) {
	order, err := orderBy(opts.Sort, categorySortColumns, defaultCategorySort, "id")
	if err != nil {
		return nil, 0, err
	}

	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count categories: %w", err)
	}

	args := &argList{}
	query := fmt.Sprintf(`SELECT %s FROM categories %s%s`, categoryColumns, order, limitOffset(args, opts))
	rows, err := conn.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, total, nil
}
