package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/apperror"
)

const DefaultImageCover = "product-default.jpg"

// ProductAttr is a single key/value attribute on a product
type ProductAttr struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Product represents a product in the catalog
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Count         int             `json:"count"`
	Price         decimal.Decimal `json:"price"`
	Rating        float64         `json:"rating"`
	ReviewsNumber int             `json:"reviewsNumber"`
	Sales         int             `json:"sales"`
	Attrs         []ProductAttr   `json:"attrs"`
	Images        []string        `json:"images,omitempty"`
	ImageCover    string          `json:"imageCover"`
	Reviews       []uuid.UUID     `json:"reviews,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AddReviewRating folds a new review rating into the running mean.
func (p *Product) AddReviewRating(rating int) {
	if p.ReviewsNumber == 0 {
		p.Rating = float64(rating)
		p.ReviewsNumber = 1
		return
	}
	n := float64(p.ReviewsNumber)
	p.Rating = clampRating((p.Rating*n + float64(rating)) / (n + 1))
	p.ReviewsNumber++
}

// UpdateReviewRating replaces oldRating with newRating in the running mean.
// The count is unchanged.
func (p *Product) UpdateReviewRating(oldRating, newRating int) error {
	if p.ReviewsNumber == 0 {
		return apperror.Invariant("cannot update a rating on a product without reviews")
	}
	if p.ReviewsNumber == 1 {
		p.Rating = float64(newRating)
		return nil
	}
	n := float64(p.ReviewsNumber)
	p.Rating = clampRating((p.Rating*n - float64(oldRating) + float64(newRating)) / n)
	return nil
}

// DeleteReviewRating removes oldRating from the running mean.
func (p *Product) DeleteReviewRating(oldRating int) error {
	if p.ReviewsNumber == 0 {
		return apperror.Invariant("cannot remove a rating from a product without reviews")
	}
	if p.ReviewsNumber == 1 {
		p.Rating = 0
		p.ReviewsNumber = 0
		return nil
	}
	n := float64(p.ReviewsNumber)
	p.Rating = clampRating((p.Rating*n - float64(oldRating)) / (n - 1))
	p.ReviewsNumber--
	return nil
}

// clampRating keeps a drifting running mean inside the rating range the
// products table enforces.
func clampRating(r float64) float64 {
	return math.Min(math.Max(r, 0), MaxRating)
}

// Listing strips the fields omitted from catalogue listings
func (p Product) Listing() Product {
	p.Images = nil
	p.Reviews = nil
	return p
}
