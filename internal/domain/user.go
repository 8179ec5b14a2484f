package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultUserPhoto = "default.jpg"

// Address is a delivery address value
type Address struct {
	ContactName        string `json:"contactName" validate:"required"`
	ContactPhoneNumber string `json:"contactPhoneNumber" validate:"required"`
	DeliveryLocation   string `json:"deliveryLocation" validate:"required"`
}

// SavedAddress is an address stored on a user profile
type SavedAddress struct {
	ID uuid.UUID `json:"id"`
	Address
}

// User represents a customer or administrator account
type User struct {
	ID                   uuid.UUID      `json:"id"`
	Name                 string         `json:"name"`
	Email                string         `json:"email"`
	Photo                string         `json:"photo"`
	PhoneNumber          string         `json:"phoneNumber,omitempty"`
	SavedAddresses       []SavedAddress `json:"savedAddresses"`
	PasswordHash         string         `json:"-"`
	PasswordChangedAt    *time.Time     `json:"passwordChangedAt,omitempty"`
	PasswordResetToken   string         `json:"-"`
	PasswordResetExpires *time.Time     `json:"-"`
	IsAdmin              bool           `json:"isAdmin"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at issuedAt.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Second).After(issuedAt)
}

// ClearPasswordReset drops any pending reset token
func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// RemoveAddress deletes the saved address with the given id. It reports
// whether an address was removed.
func (u *User) RemoveAddress(id uuid.UUID) bool {
	for i, addr := range u.SavedAddresses {
		if addr.ID == id {
			u.SavedAddresses = append(u.SavedAddresses[:i], u.SavedAddresses[i+1:]...)
			return true
		}
	}
	return false
}

// PublicProfile is the view of a user shown to other users
type PublicProfile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Photo     string    `json:"photo"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{ID: u.ID, Name: u.Name, Photo: u.Photo, CreatedAt: u.CreatedAt}
}

// RefreshToken represents a refresh token for long-lived sessions
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	Revoked   bool      `json:"revoked"`
}

// IsAuthorized reports whether actor may act on a resource owned by ownerID.
func IsAuthorized(actor *User, ownerID uuid.UUID) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin || actor.ID == ownerID
}
