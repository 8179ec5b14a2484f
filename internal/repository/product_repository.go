package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/database"
	"storefront/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// NumericOp is a comparison accepted by numeric product filters
type NumericOp string

const (
	OpEq  NumericOp = "eq"
	OpGt  NumericOp = "gt"
	OpGte NumericOp = "gte"
	OpLt  NumericOp = "lt"
	OpLte NumericOp = "lte"
)

var numericOperators = map[NumericOp]string{
	OpEq:  "=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// NumericFilter compares a numeric product field with Value
type NumericFilter struct {
	Field string
	Op    NumericOp
	Value float64
}

// AttributeFacet matches products carrying Key with any of Values
type AttributeFacet struct {
	Key    string
	Values []string
}

// ProductFilter narrows a product listing. Zero values match everything.
type ProductFilter struct {
	Category   string
	Name       string
	Term       string
	Numeric    []NumericFilter
	Attributes []AttributeFacet
}

var productNumericColumns = map[string]string{
	"price":         "price",
	"count":         "count",
	"rating":        "rating",
	"reviewsNumber": "reviews_number",
	"sales":         "sales",
}

var productSortColumns = map[string]string{
	"name":          "name",
	"category":      "category",
	"price":         "price",
	"count":         "count",
	"rating":        "rating",
	"reviewsNumber": "reviews_number",
	"sales":         "sales",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
}

var defaultProductSort = []SortField{{Field: "rating"}}

// IsNumericProductField reports whether field accepts comparison filters
func IsNumericProductField(field string) bool {
	_, ok := productNumericColumns[field]
	return ok
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	ApplySale(ctx context.Context, id uuid.UUID, quantity int) error
	List(ctx context.Context, filter ProductFilter, opts ListOptions) ([]*domain.Product, int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, category, count, price, rating, reviews_number,
	sales, attrs, images, image_cover, created_at, updated_at`

const productReviewIDs = `COALESCE((SELECT jsonb_agg(r.id ORDER BY r.created_at) FROM reviews r WHERE r.product_id = products.id), '[]'::jsonb)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, withReviews bool) (*domain.Product, error) {
	p := &domain.Product{}
	var attrs, images, reviews []byte
	dest := []any{
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Count, &p.Price, &p.Rating,
		&p.ReviewsNumber, &p.Sales, &attrs, &images, &p.ImageCover, &p.CreatedAt, &p.UpdatedAt,
	}
	if withReviews {
		dest = append(dest, &reviews)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := scanJSON(attrs, &p.Attrs); err != nil {
		return nil, err
	}
	if err := scanJSON(images, &p.Images); err != nil {
		return nil, err
	}
	if err := scanJSON(reviews, &p.Reviews); err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new product
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	attrs, err := jsonArg(product.Attrs)
	if err != nil {
		return err
	}
	images, err := jsonArg(product.Images)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt, product.UpdatedAt = now, now
	if product.ImageCover == "" {
		product.ImageCover = domain.DefaultImageCover
	}

	query := `
		INSERT INTO products (id, name, description, category, count, price, rating, reviews_number,
			sales, attrs, images, image_cover, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = database.Conn(ctx, r.db).ExecContext(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.Count,
		product.Price, product.Rating, product.ReviewsNumber, product.Sales, attrs, images,
		product.ImageCover, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translate(err))
	}
	return nil
}

// Update writes every mutable column of product
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	attrs, err := jsonArg(product.Attrs)
	if err != nil {
		return err
	}
	images, err := jsonArg(product.Images)
	if err != nil {
		return err
	}
	product.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $2, description = $3, category = $4, count = $5, price = $6, rating = $7,
		    reviews_number = $8, sales = $9, attrs = $10, images = $11, image_cover = $12, updated_at = $13
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.Count,
		product.Price, product.Rating, product.ReviewsNumber, product.Sales, attrs, images,
		product.ImageCover, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", translate(err))
	}
	return expectRow(result, ErrProductNotFound)
}

// Delete removes a product. Reviews must be deleted first.
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", translate(err))
	}
	return expectRow(result, ErrProductNotFound)
}

// FindByID retrieves a product with its review ids
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.findOne(ctx, id, "")
}

// LockByID retrieves a product and locks its row until the surrounding
// transaction ends.
func (r *productRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.findOne(ctx, id, "FOR UPDATE")
}

func (r *productRepository) findOne(ctx context.Context, id uuid.UUID, lock string) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM products WHERE id = $1 %s`, productColumns, productReviewIDs, lock)

	product, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", translate(err))
	}
	return product, nil
}

// LockMany locks every listed product in id order. Missing ids are absent
// from the result.
func (r *productRepository) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, productColumns)
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", translate(err))
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*domain.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// ApplySale moves quantity units from stock to sales
func (r *productRepository) ApplySale(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET count = count - $2, sales = sales + $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to apply sale: %w", translate(err))
	}
	return expectRow(result, ErrProductNotFound)
}

// List retrieves products matching filter. opts.Limit <= 0 returns every match.
func (r *productRepository) List(ctx context.Context, filter ProductFilter, opts ListOptions) ([]*domain.Product, int, error) {
	order, err := orderBy(opts.Sort, productSortColumns, defaultProductSort, "id")
	if err != nil {
		return nil, 0, err
	}

	args := &argList{}
	conds, err := productConditions(filter, args)
	if err != nil {
		return nil, 0, err
	}
	whereClause := where(conds)

	conn := database.Conn(ctx, r.db)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	if err := conn.QueryRowContext(ctx, countQuery, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", translate(err))
	}

	query := fmt.Sprintf(`SELECT %s FROM products %s %s%s`,
		productColumns, whereClause, order, limitOffset(args, opts))

	rows, err := conn.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", translate(err))
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows, false)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

func productConditions(filter ProductFilter, args *argList) ([]string, error) {
	var conds []string

	if filter.Category != "" {
		conds = append(conds, "category = "+args.add(filter.Category))
	}
	if filter.Name != "" {
		conds = append(conds, "name = "+args.add(filter.Name))
	}
	if term := strings.TrimSpace(filter.Term); term != "" {
		conds = append(conds, "name ILIKE "+args.add("%"+escapeLike(term)+"%"))
	}

	for _, f := range filter.Numeric {
		column, ok := productNumericColumns[f.Field]
		if !ok {
			return nil, fmt.Errorf("unsupported numeric filter field %q", f.Field)
		}
		op, ok := numericOperators[f.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported numeric operator %q", f.Op)
		}
		conds = append(conds, fmt.Sprintf("%s %s %s::double precision", column, op, args.add(f.Value)))
	}

	for _, facet := range filter.Attributes {
		if len(facet.Values) == 0 {
			continue
		}
		placeholders := make([]string, len(facet.Values))
		for i, v := range facet.Values {
			placeholders[i] = args.add(v)
		}
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(attrs) a WHERE a->>'key' = %s AND a->>'value' IN (%s))",
			args.add(facet.Key), strings.Join(placeholders, ", "),
		))
	}

	return conds, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
