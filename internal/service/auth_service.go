package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperror"
	"storefront/internal/database"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/notify"
	"storefront/internal/repository"
)

const (
	// BcryptCost is the cost factor for password hashes
	BcryptCost = 12

	ResetTokenExpiration = 10 * time.Minute
	mailTimeout          = 15 * time.Second
)

// AuthConfig holds token signing settings
type AuthConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// SignupInput is the body of a signup request
type SignupInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Photo           string `json:"photo"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// LoginInput is the body of a login request
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordInput is the body of a password reset request
type ResetPasswordInput struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// UpdatePasswordInput is the body of a password change by a logged in user
type UpdatePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// AuthResult is returned by every operation that starts a session
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// AuthService defines identity and session operations
type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*AuthResult, error)
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email, baseURL string) error
	ResetPassword(ctx context.Context, token string, in ResetPasswordInput) (*AuthResult, error)
	UpdateMyPassword(ctx context.Context, actor *domain.User, in UpdatePasswordInput) (*AuthResult, error)
	ValidateToken(tokenString string) (*Claims, error)
	Authenticate(ctx context.Context, tokenString string) (*domain.User, error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

type authService struct {
	users    repository.UserRepository
	tokens   repository.RefreshTokenRepository
	mailer   notify.Mailer
	tx       database.Transactor
	cfg      AuthConfig
	logger   *zap.Logger
	hashCost int
	now      func() time.Time
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	mailer notify.Mailer,
	tx database.Transactor,
	cfg AuthConfig,
	logger *zap.Logger,
) AuthService {
	return &authService{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		tx:       tx,
		cfg:      cfg,
		logger:   logger,
		hashCost: BcryptCost,
		now:      time.Now,
	}
}

// Signup creates a regular user account and logs it in
func (s *authService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	if err := checkPasswordPair(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hashedPassword, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Name:           strings.TrimSpace(in.Name),
		Email:          normalizeEmail(in.Email),
		Photo:          in.Photo,
		PasswordHash:   hashedPassword,
		SavedAddresses: []domain.SavedAddress{},
	}

	var result *AuthResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		result, err = s.issueTokens(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Login authenticates a user by email and password
func (s *authService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if in.Email == "" || in.Password == "" {
		return nil, apperror.Validation("Please provide email and password")
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.Unauthenticated("Incorrect email or password")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, in.Password); err != nil {
		return nil, apperror.Unauthenticated("Incorrect email or password")
	}

	return s.issueTokens(ctx, user)
}

// Logout invalidates the refresh token
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			// already logged out
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// Refresh generates a new access token using a valid refresh token
func (s *authService) Refresh(ctx context.Context, refreshTokenString string) (string, error) {
	refreshToken, err := s.tokens.FindByToken(ctx, refreshTokenString)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", apperror.Unauthenticated("Invalid refresh token. Please log in again")
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if s.now().After(refreshToken.ExpiresAt) {
		return "", apperror.Unauthenticated("Refresh token expired. Please log in again")
	}

	user, err := s.users.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", apperror.Unauthenticated("The user belonging to this token does no longer exist")
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return accessToken, nil
}

// ForgotPassword stores a hashed reset token and mails the plain token to the
// user. When the mail cannot be sent the token is withdrawn again.
func (s *authService) ForgotPassword(ctx context.Context, email, baseURL string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperror.NotFound("There is no user with email address")
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	resetToken, hashed, err := newResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	expires := s.now().Add(ResetTokenExpiration)
	user.PasswordResetToken = hashed
	user.PasswordResetExpires = &expires
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := strings.TrimRight(baseURL, "/") + "/api/users/resetPassword/" + resetToken
	msg := notify.Message{
		To:      user.Email,
		Subject: "Your password reset token (valid for 10 mins)",
		Body: "Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: " +
			resetURL + "\nIf you didn't forget your password, please ignore this email.",
	}

	sendCtx, cancel := context.WithTimeout(ctx, mailTimeout)
	defer cancel()
	if sendErr := s.mailer.Send(sendCtx, msg); sendErr != nil {
		logger.FromContext(ctx, s.logger).Error("Failed to send password reset email",
			zap.String("user_id", user.ID.String()),
			zap.Error(sendErr),
		)
		user.ClearPasswordReset()
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("failed to clear reset token: %w", err)
		}
		return apperror.External("There was an error sending the email. Try again later.", sendErr)
	}
	return nil
}

// ResetPassword sets a new password for the holder of an unexpired reset token
func (s *authService) ResetPassword(ctx context.Context, token string, in ResetPasswordInput) (*AuthResult, error) {
	user, err := s.users.FindByResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.Validation("Token is invalid or has expired")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if err := checkPasswordPair(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	user.ClearPasswordReset()
	return s.changePassword(ctx, user, in.Password)
}

// UpdateMyPassword changes the password of a logged in user after checking
// the current one.
func (s *authService) UpdateMyPassword(ctx context.Context, actor *domain.User, in UpdatePasswordInput) (*AuthResult, error) {
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, in.CurrentPassword); err != nil {
		return nil, apperror.Validation("Current password is incorrect",
			apperror.FieldError{Field: "currentPassword", Message: "does not match"})
	}
	if err := checkPasswordPair(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	return s.changePassword(ctx, user, in.Password)
}

// changePassword stores the new hash, invalidates every older session and
// starts a fresh one.
func (s *authService) changePassword(ctx context.Context, user *domain.User, plain string) (*AuthResult, error) {
	hashedPassword, err := s.hashPassword(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hashedPassword
	// one second back so a token issued right now is still newer
	changedAt := s.now().Add(-time.Second)
	user.PasswordChangedAt = &changedAt

	var result *AuthResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Update(ctx, user); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		result, err = s.issueTokens(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Wrap(apperror.KindUnauthenticated, "Token expired. Please log in again", err)
		}
		return nil, apperror.Wrap(apperror.KindUnauthenticated, "Invalid Token. Please log in again", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil || claims.IssuedAt == nil {
		return nil, apperror.Unauthenticated("Invalid Token. Please log in again")
	}
	return claims, nil
}

// Authenticate resolves an access token to its user. Tokens of deleted users
// and tokens issued before the last password change are rejected.
func (s *authService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.Unauthenticated("The user belonging to this token does no longer exist")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, apperror.Unauthenticated("User recently changed password! Please log in again")
	}
	return user, nil
}

func (s *authService) issueTokens(ctx context.Context, user *domain.User) (*AuthResult, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &AuthResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

func (s *authService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *authService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (s *authService) generateAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

// generateRefreshToken stores a random refresh token for user
func (s *authService) generateRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	now := s.now()
	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.cfg.RefreshExpiry),
		CreatedAt: now,
	}

	if err := s.tokens.Create(ctx, refreshToken); err != nil {
		return "", err
	}
	return refreshToken.Token, nil
}

func checkPasswordPair(password, confirm string) error {
	if len(password) < 8 {
		return apperror.Validation("Invalid input data",
			apperror.FieldError{Field: "password", Message: "password must be at least 8 characters"})
	}
	if password != confirm {
		return apperror.Validation("Passwords are not the same!",
			apperror.FieldError{Field: "passwordConfirm", Message: "must match password"})
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newResetToken returns a random token and the hash that is stored for it
func newResetToken() (plain, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(b)
	return plain, hashResetToken(plain), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
