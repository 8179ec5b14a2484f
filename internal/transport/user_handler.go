package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

// RefreshRequest carries a refresh token for refresh and logout
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ForgotPasswordRequest starts a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AuthResponse is returned by every endpoint that starts a session
type AuthResponse struct {
	Status       string       `json:"status"`
	Message      string       `json:"message,omitempty"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	Data         *domain.User `json:"data"`
}

// RefreshResponse represents the token refresh response
type RefreshResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

// UserHandler handles HTTP requests for identity and profile operations
type UserHandler struct {
	auth    service.AuthService
	users   service.UserService
	baseURL string
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler. baseURL is used in password reset
// links; when empty the request host is used.
func NewUserHandler(auth service.AuthService, users service.UserService, baseURL string, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		auth:    auth,
		users:   users,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/users", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(guards.rateLimited())
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/forgotPassword", h.ForgotPassword)
			r.Patch("/resetPassword/{token}", h.ResetPassword)
		})
		r.Post("/refresh", h.Refresh)
		r.Get("/user/{userId}", h.GetPublic)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(guards.Auth)
			r.Post("/logout", h.Logout)
			r.Get("/getMyInfo", h.GetMyInfo)
			r.Patch("/updateMyPassword", h.UpdateMyPassword)
			r.Patch("/updateMyInfo", h.UpdateMyInfo)
			r.Patch("/addaddress", h.AddAddress)
			r.Delete("/deleteaddress/{addressId}", h.DeleteAddress)
			r.Delete("/deleteMe", h.DeleteMe)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(guards.Auth, guards.Admin)
			r.Get("/", h.List)
			r.Get("/admin/{userId}", h.AdminGet)
			r.Delete("/admin/{userId}/delete", h.AdminDelete)
		})
	})
}

// Signup handles account registration
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		h.logger.Debug("Signup validation failed", zap.Error(err))
		middleware.RespondWithError(w, r, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("User signed up", zap.String("user_id", result.User.ID.String()))
	respondWithSession(w, http.StatusCreated, result, "")
}

// Login handles user authentication
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.logger.Debug("Login failed", zap.Error(err))
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("User logged in", zap.String("user_id", result.User.ID.String()))
	respondWithSession(w, http.StatusOK, result, "")
}

// Logout revokes the given refresh token
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("User logged out")
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":  middleware.StatusSuccess,
		"message": "Logged out successfully",
	})
}

// Refresh issues a new access token for a valid refresh token
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	token, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Debug("Token refresh failed", zap.Error(err))
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{Status: middleware.StatusSuccess, Token: token})
}

func (h *UserHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email, requestBaseURL(r, h.baseURL)); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":  middleware.StatusSuccess,
		"message": "Token sent to email",
	})
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in service.ResetPasswordInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	result, err := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Password reset", zap.String("user_id", result.User.ID.String()))
	respondWithSession(w, http.StatusOK, result, "")
}

func (h *UserHandler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.UpdatePasswordInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	result, err := h.auth.UpdateMyPassword(r.Context(), actor, in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	respondWithSession(w, http.StatusOK, result, "Your password has been updated")
}

func (h *UserHandler) GetMyInfo(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	info, err := h.users.GetMyInfo(r.Context(), actor)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, info, nil)
}

// UpdateMyInfo accepts JSON or a multipart form with an optional "photo" file
func (h *UserHandler) UpdateMyInfo(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.UpdateMyInfoInput
	var photo *service.Upload

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		in = service.UpdateMyInfoInput{
			Name:        formString(r, "name"),
			Email:       formString(r, "email"),
			PhoneNumber: formString(r, "phoneNumber"),
		}
		if err := middleware.Validate(&in); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}

		uploads, closeUploads, err := formUploads(r, "photo")
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		defer closeUploads()
		if len(uploads) > 1 {
			middleware.RespondWithError(w, r, apperror.Validation("Only one photo can be uploaded",
				apperror.FieldError{Field: "photo", Message: "send a single file"}))
			return
		}
		if len(uploads) == 1 {
			photo = &uploads[0]
		}
	} else if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	user, err := h.users.UpdateMyInfo(r.Context(), actor, in, photo)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, user, nil)
}

func (h *UserHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var addr domain.Address
	if err := middleware.DecodeAndValidate(r, &addr); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	user, err := h.users.AddAddress(r.Context(), actor, addr)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, user, nil)
}

func (h *UserHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	addressID, err := pathUUID(r, "addressId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	user, err := h.users.DeleteAddress(r.Context(), actor, addressID)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, user, nil)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.users.DeleteMe(r.Context(), actor); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("User deleted own account", zap.String("user_id", actor.ID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// GetPublic returns the public profile of any user
func (h *UserHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	profile, err := h.users.GetPublic(r.Context(), id)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, profile, nil)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	users, total, err := h.users.List(r.Context(), params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, users, listExtras(len(users), total))
}

func (h *UserHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, user, nil)
}

func (h *UserHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("User deleted by admin", zap.String("user_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func respondWithSession(w http.ResponseWriter, status int, result *service.AuthResult, message string) {
	middleware.RespondWithJSON(w, status, AuthResponse{
		Status:       middleware.StatusSuccess,
		Message:      message,
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		Data:         result.User,
	})
}
