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
	ErrReviewNotFound = errors.New("review not found")
)

var reviewSortColumns = map[string]string{
	"rating":    "r.rating",
	"likes":     "r.likes",
	"createdAt": "r.created_at",
	"updatedAt": "r.updated_at",
}

var defaultReviewSort = []SortField{{Field: "createdAt", Desc: true}}

// ReviewFilter selects reviews by product and/or author
type ReviewFilter struct {
	ProductID uuid.UUID
	UserID    uuid.UUID
}

// ReviewRepository defines the interface for review data access
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	Update(ctx context.Context, review *domain.Review) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByProduct(ctx context.Context, productID uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	ExistsForUser(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ReviewFilter, opts ListOptions) ([]*domain.Review, int, error)
}

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new instance of ReviewRepository
func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// Author columns come from a LEFT JOIN so reviews of deleted users still load.
const reviewColumns = `r.id, r.product_id, r.product_name, r.user_id, r.rating, r.review, r.likes,
	r.who_liked, r.created_at, r.updated_at, u.name, u.photo, u.created_at`

const reviewFrom = `FROM reviews r LEFT JOIN users u ON u.id = r.user_id`

func scanReview(row rowScanner) (*domain.Review, error) {
	rv := &domain.Review{}
	var whoLiked []byte
	var authorName, authorPhoto sql.NullString
	var authorCreated sql.NullTime
	err := row.Scan(
		&rv.ID, &rv.ProductID, &rv.ProductName, &rv.UserID, &rv.Rating, &rv.Text, &rv.Likes,
		&whoLiked, &rv.CreatedAt, &rv.UpdatedAt, &authorName, &authorPhoto, &authorCreated,
	)
	if err != nil {
		return nil, err
	}
	if err := scanJSON(whoLiked, &rv.WhoLiked); err != nil {
		return nil, err
	}
	if authorName.Valid {
		rv.User = &domain.PublicProfile{
			ID:        rv.UserID,
			Name:      authorName.String,
			Photo:     authorPhoto.String,
			CreatedAt: authorCreated.Time,
		}
	}
	return rv, nil
}

func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	whoLiked, err := jsonArg(review.WhoLiked)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	review.CreatedAt, review.UpdatedAt = now, now

	query := `
		INSERT INTO reviews (id, product_id, product_name, user_id, rating, review, likes, who_liked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = database.Conn(ctx, r.db).ExecContext(ctx, query,
		review.ID, review.ProductID, review.ProductName, review.UserID, review.Rating, review.Text,
		review.Likes, whoLiked, review.CreatedAt, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", translate(err))
	}
	return nil
}

func (r *reviewRepository) Update(ctx context.Context, review *domain.Review) error {
	whoLiked, err := jsonArg(review.WhoLiked)
	if err != nil {
		return err
	}
	review.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE reviews
		SET rating = $2, review = $3, likes = $4, who_liked = $5, product_name = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		review.ID, review.Rating, review.Text, review.Likes, whoLiked, review.ProductName, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", translate(err))
	}
	return expectRow(result, ErrReviewNotFound)
}

func (r *reviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", translate(err))
	}
	return expectRow(result, ErrReviewNotFound)
}

func (r *reviewRepository) DeleteByProduct(ctx context.Context, productID uuid.UUID) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reviews WHERE product_id = $1`, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product reviews: %w", translate(err))
	}
	return nil
}

func (r *reviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	return r.findOne(ctx, id, "")
}

// LockByID retrieves a review and locks its row
func (r *reviewRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	return r.findOne(ctx, id, "FOR UPDATE OF r")
}

func (r *reviewRepository) findOne(ctx context.Context, id uuid.UUID, lock string) (*domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.id = $1 %s`, reviewColumns, reviewFrom, lock)

	review, err := scanReview(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to find review: %w", translate(err))
	}
	return review, nil
}

func (r *reviewRepository) ExistsForUser(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE user_id = $1 AND product_id = $2)`,
		userID, productID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check review: %w", err)
	}
	return exists, nil
}

// List returns reviews matching filter with the total match count.
func (r *reviewRepository) List(ctx context.Context, filter ReviewFilter, opts ListOptions) ([]*domain.Review, int, error) {
	order, err := orderBy(opts.Sort, reviewSortColumns, defaultReviewSort, "r.id")
	if err != nil {
		return nil, 0, err
	}

	args := &argList{}
	var conds []string
	if filter.ProductID != uuid.Nil {
		conds = append(conds, "r.product_id = "+args.add(filter.ProductID))
	}
	if filter.UserID != uuid.Nil {
		conds = append(conds, "r.user_id = "+args.add(filter.UserID))
	}
	whereClause := where(conds)

	conn := database.Conn(ctx, r.db)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM reviews r %s`, whereClause)
	if err := conn.QueryRowContext(ctx, countQuery, args.values...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s %s %s %s%s`, reviewColumns, reviewFrom, whereClause, order, limitOffset(args, opts))
	rows, err := conn.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, total, nil
}
