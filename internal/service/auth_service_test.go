package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/middleware"
)

type authFixture struct {
	svc    *authService
	users  *mockUserRepository
	tokens *mockRefreshTokenRepository
	mailer *recordingMailer
}

func newAuthFixture() *authFixture {
	users := newMockUserRepository()
	tokens := newMockRefreshTokenRepository()
	mailer := &recordingMailer{}
	svc := NewAuthService(users, tokens, mailer, noopTx{}, AuthConfig{
		Secret:        "test-secret-key",
		AccessExpiry:  time.Hour,
		RefreshExpiry: 24 * time.Hour,
	}, zap.NewNop()).(*authService)
	svc.hashCost = bcrypt.MinCost
	return &authFixture{svc: svc, users: users, tokens: tokens, mailer: mailer}
}

func (f *authFixture) signup(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), SignupInput{
		Name: "Ana", Email: email, Password: password, PasswordConfirm: password,
	})
	require.NoError(t, err)
	return res
}

func bcryptParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	return parameters
}

func TestProperty_SignupStoresHashedPasswords(t *testing.T) {
	properties := gopter.NewProperties(bcryptParameters())

	properties.Property("passwords are hashed with bcrypt and never stored as plaintext", prop.ForAll(
		func(email string, password string) bool {
			f := newAuthFixture()
			ctx := context.Background()

			res, err := f.svc.Signup(ctx, SignupInput{Name: "Ana", Email: email, Password: password, PasswordConfirm: password})
			if err != nil {
				t.Logf("FAIL: signup failed: %v", err)
				return false
			}
			if res.User.PasswordHash == password {
				t.Logf("FAIL: password stored as plaintext for %s", email)
				return false
			}

			stored, err := f.users.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("FAIL: could not find stored user: %v", err)
				return false
			}
			if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(password)); err != nil {
				t.Logf("FAIL: stored hash does not match password: %v", err)
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_AccessTokensCarryUserClaims(t *testing.T) {
	properties := gopter.NewProperties(bcryptParameters())

	properties.Property("access tokens contain user id, issued at and expiry", prop.ForAll(
		func(email string, password string) bool {
			f := newAuthFixture()
			ctx := context.Background()

			if _, err := f.svc.Signup(ctx, SignupInput{Name: "Ana", Email: email, Password: password, PasswordConfirm: password}); err != nil {
				t.Logf("FAIL: signup failed: %v", err)
				return false
			}

			res, err := f.svc.Login(ctx, LoginInput{Email: email, Password: password})
			if err != nil {
				t.Logf("FAIL: login failed: %v", err)
				return false
			}

			claims, err := f.svc.ValidateToken(res.AccessToken)
			if err != nil {
				t.Logf("FAIL: token validation failed: %v", err)
				return false
			}
			if claims.UserID != res.User.ID {
				t.Logf("FAIL: user id claim mismatch, expected %s got %s", res.User.ID, claims.UserID)
				return false
			}
			if claims.ExpiresAt == nil || claims.IssuedAt == nil {
				t.Logf("FAIL: token missing exp or iat")
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_LogoutInvalidatesRefreshToken(t *testing.T) {
	properties := gopter.NewProperties(bcryptParameters())

	properties.Property("refresh works before logout and fails after", prop.ForAll(
		func(email string, password string) bool {
			f := newAuthFixture()
			ctx := context.Background()

			res, err := f.svc.Signup(ctx, SignupInput{Name: "Ana", Email: email, Password: password, PasswordConfirm: password})
			if err != nil {
				t.Logf("FAIL: signup failed: %v", err)
				return false
			}

			if _, err := f.svc.Refresh(ctx, res.RefreshToken); err != nil {
				t.Logf("FAIL: refresh should work before logout: %v", err)
				return false
			}
			if err := f.svc.Logout(ctx, res.RefreshToken); err != nil {
				t.Logf("FAIL: logout failed: %v", err)
				return false
			}

			_, err = f.svc.Refresh(ctx, res.RefreshToken)
			if !apperror.Is(err, apperror.KindUnauthenticated) {
				t.Logf("FAIL: expected unauthenticated after logout, got %v", err)
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestSignupNormalizesEmailAndChecksConfirmation(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, SignupInput{Name: " Ana ", Email: " Ana@Example.COM ", Password: "password1", PasswordConfirm: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", res.User.Email)
	assert.Equal(t, "Ana", res.User.Name)
	assert.Equal(t, domain.DefaultUserPhoto, res.User.Photo)
	assert.False(t, res.User.IsAdmin)

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Bo", Email: "bo@example.com", Password: "password1", PasswordConfirm: "password2"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Bo", Email: "bo@example.com", Password: "short", PasswordConfirm: "short"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.Signup(ctx, SignupInput{Name: "Other", Email: "ana@example.com", Password: "password1", PasswordConfirm: "password1"})
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture()
	f.signup(t, "ana@example.com", "password1")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "wrong-password"})
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindUnauthenticated, appErr.Kind)
	assert.Equal(t, "Incorrect email or password", appErr.Message)

	_, err = f.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"})
	assert.True(t, apperror.Is(err, apperror.KindUnauthenticated))

	_, err = f.svc.Login(ctx, LoginInput{Email: "ana@example.com"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	res, err := f.svc.Login(ctx, LoginInput{Email: "ANA@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestValidateTokenDistinguishesExpiredAndMalformed(t *testing.T) {
	f := newAuthFixture()
	res := f.signup(t, "ana@example.com", "password1")

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := f.svc.ValidateToken(res.AccessToken)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Token expired. Please log in again", appErr.Message)

	_, err = f.svc.ValidateToken("not.a.token")
	appErr, ok = apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid Token. Please log in again", appErr.Message)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: res.User.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forged, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	f.svc.now = time.Now
	_, err = f.svc.ValidateToken(forged)
	assert.True(t, apperror.Is(err, apperror.KindUnauthenticated))
}

func TestAuthenticateRejectsStaleTokens(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	res := f.signup(t, "ana@example.com", "password1")

	user, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)

	// password changed well after the token was issued
	stored, err := f.users.FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	changed := time.Now().Add(time.Minute)
	stored.PasswordChangedAt = &changed
	require.NoError(t, f.users.Update(ctx, stored))

	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "User recently changed password! Please log in again", appErr.Message)

	require.NoError(t, f.users.Delete(ctx, res.User.ID))
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	appErr, ok = apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "The user belonging to this token does no longer exist", appErr.Message)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	first := f.signup(t, "ana@example.com", "password1")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ana@example.com", "http://shop.test/"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ana@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Body, "http://shop.test/api/users/resetPassword/")

	token, err := f.mailer.lastToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)

	stored, err := f.users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, hashResetToken(token), stored.PasswordResetToken)
	assert.NotEqual(t, token, stored.PasswordResetToken)

	_, err = f.svc.ResetPassword(ctx, "wrong", ResetPasswordInput{Password: "newpassword", PasswordConfirm: "newpassword"})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Token is invalid or has expired", appErr.Message)

	res, err := f.svc.ResetPassword(ctx, token, ResetPasswordInput{Password: "newpassword", PasswordConfirm: "newpassword"})
	require.NoError(t, err)

	// new session works, old one is gone
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.True(t, apperror.Is(err, apperror.KindUnauthenticated))

	stored, err = f.users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
	require.NotNil(t, stored.PasswordChangedAt)

	// the token is single use
	_, err = f.svc.ResetPassword(ctx, token, ResetPasswordInput{Password: "another1", PasswordConfirm: "another1"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "newpassword"})
	assert.NoError(t, err)
}

func TestResetTokenExpires(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.signup(t, "ana@example.com", "password1")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ana@example.com", "http://shop.test"))
	token, err := f.mailer.lastToken()
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(ResetTokenExpiration + time.Minute) }
	_, err = f.svc.ResetPassword(ctx, token, ResetPasswordInput{Password: "newpassword", PasswordConfirm: "newpassword"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestForgotPasswordRollsBackWhenMailFails(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.signup(t, "ana@example.com", "password1")
	f.mailer.err = errors.New("smtp down")

	err := f.svc.ForgotPassword(ctx, "ana@example.com", "http://shop.test")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindExternal, appErr.Kind)
	assert.Equal(t, "There was an error sending the email. Try again later.", appErr.Message)

	w := httptest.NewRecorder()
	middleware.NewErrorRenderer(zap.NewNop(), false).Render(w, httptest.NewRequest(http.MethodPost, "/api/users/forgotPassword", nil), err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "There was an error sending the email. Try again later.")
	assert.NotContains(t, w.Body.String(), "smtp down")

	stored, err := f.users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)

	err = f.svc.ForgotPassword(ctx, "nobody@example.com", "http://shop.test")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestUpdateMyPassword(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	first := f.signup(t, "ana@example.com", "password1")

	_, err := f.svc.UpdateMyPassword(ctx, first.User, UpdatePasswordInput{
		CurrentPassword: "nope", Password: "password2", PasswordConfirm: "password2",
	})
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Current password is incorrect", appErr.Message)

	res, err := f.svc.UpdateMyPassword(ctx, first.User, UpdatePasswordInput{
		CurrentPassword: "password1", Password: "password2", PasswordConfirm: "password2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, res.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.True(t, apperror.Is(err, apperror.KindUnauthenticated))
	_, err = f.svc.Refresh(ctx, res.RefreshToken)
	assert.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "password2"})
	assert.NoError(t, err)
}

func TestRefreshRejectsExpiredAndUnknownTokens(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	res := f.signup(t, "ana@example.com", "password1")

	_, err := f.svc.Refresh(ctx, uuid.NewString())
	assert.True(t, apperror.Is(err, apperror.KindUnauthenticated))

	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = f.svc.Refresh(ctx, res.RefreshToken)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "Refresh token expired. Please log in again", appErr.Message)

	assert.NoError(t, f.svc.Logout(ctx, uuid.NewString()))
}
