package domain

import (
	"time"

	"github.com/google/uuid"

	"storefront/internal/apperror"
)

const (
	MinRating    = 1
	MaxRating    = 5
	MaxReviewLen = 1000
)

// Review is a user's rating and text on a product
type Review struct {
	ID          uuid.UUID      `json:"id"`
	ProductID   uuid.UUID      `json:"product"`
	ProductName string         `json:"productName"`
	UserID      uuid.UUID      `json:"-"`
	User        *PublicProfile `json:"user,omitempty"`
	Rating      int            `json:"rating"`
	Text        string         `json:"review"`
	Likes       int            `json:"likes"`
	WhoLiked    []uuid.UUID    `json:"whoLiked"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// LikedBy reports whether userID already liked the review
func (r *Review) LikedBy(userID uuid.UUID) bool {
	for _, id := range r.WhoLiked {
		if id == userID {
			return true
		}
	}
	return false
}

// Like records a like from userID.
func (r *Review) Like(userID uuid.UUID) error {
	if r.UserID == userID {
		return apperror.Precondition("You cannot like your own review")
	}
	if r.LikedBy(userID) {
		return apperror.Conflict("You already liked this review")
	}
	r.WhoLiked = append(r.WhoLiked, userID)
	r.Likes++
	return nil
}

// Unlike withdraws a like previously given by userID.
func (r *Review) Unlike(userID uuid.UUID) error {
	for i, id := range r.WhoLiked {
		if id == userID {
			r.WhoLiked = append(r.WhoLiked[:i], r.WhoLiked[i+1:]...)
			r.Likes--
			return nil
		}
	}
	return apperror.Precondition("You have not liked this review")
}
