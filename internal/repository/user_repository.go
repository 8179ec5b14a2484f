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
	ErrUserNotFound = errors.New("user not found")
)

var userSortColumns = map[string]string{
	"name":      "name",
	"email":     "email",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

var defaultUserSort = []SortField{{Field: "name"}}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByResetToken(ctx context.Context, hashedToken string, now time.Time) (*domain.User, error)
	List(ctx context.Context, opts ListOptions) ([]*domain.User, int, error)
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, photo, phone_number, saved_addresses, password_hash,
	password_changed_at, COALESCE(password_reset_token, ''), password_reset_expires, is_admin,
	created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var addresses []byte
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Photo, &u.PhoneNumber, &addresses, &u.PasswordHash,
		&u.PasswordChangedAt, &u.PasswordResetToken, &u.PasswordResetExpires, &u.IsAdmin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := scanJSON(addresses, &u.SavedAddresses); err != nil {
		return nil, err
	}
	return u, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new user. Duplicate name or email yields a Conflict.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	addresses, err := jsonArg(user.SavedAddresses)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Photo == "" {
		user.Photo = domain.DefaultUserPhoto
	}

	query := `
		INSERT INTO users (id, name, email, photo, phone_number, saved_addresses, password_hash,
			password_changed_at, password_reset_token, password_reset_expires, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = database.Conn(ctx, r.db).ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.Photo, user.PhoneNumber, addresses, user.PasswordHash,
		user.PasswordChangedAt, nullableString(user.PasswordResetToken), user.PasswordResetExpires,
		user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// Update writes every mutable column of user
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	addresses, err := jsonArg(user.SavedAddresses)
	if err != nil {
		return err
	}
	user.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET name = $2, email = $3, photo = $4, phone_number = $5, saved_addresses = $6,
		    password_hash = $7, password_changed_at = $8, password_reset_token = $9,
		    password_reset_expires = $10, is_admin = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.Photo, user.PhoneNumber, addresses, user.PasswordHash,
		user.PasswordChangedAt, nullableString(user.PasswordResetToken), user.PasswordResetExpires,
		user.IsAdmin, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}
	return expectRow(result, ErrUserNotFound)
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", translate(err))
	}
	return expectRow(result, ErrUserNotFound)
}

// FindByEmail retrieves a user by email
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// FindByID retrieves a user by ID
func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByResetToken retrieves the user holding an unexpired reset token
func (r *userRepository) FindByResetToken(ctx context.Context, hashedToken string, now time.Time) (*domain.User, error) {
	return r.findOne(ctx, "password_reset_token = $1 AND password_reset_expires > $2", hashedToken, now)
}

func (r *userRepository) findOne(ctx context.Context, cond string, args ...any) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, cond)

	user, err := scanUser(database.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", translate(err))
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context, opts ListOptions) ([]*domain.User, int, error) {
	order, err := orderBy(opts.Sort, userSortColumns, defaultUserSort, "id")
	if err != nil {
		return nil, 0, err
	}

	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	args := &argList{}
	query := fmt.Sprintf(`SELECT %s FROM users %s%s`, userColumns, order, limitOffset(args, opts))
	rows, err := conn.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating users: %w", err)
	}
	return users, total, nil
}
