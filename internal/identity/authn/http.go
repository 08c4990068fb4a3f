// Copyright (c) 2026 Veridian Labs. All rights reserved.

package authn

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/constants"
	requestutil "github.com/veridianlabs/veridian/internal/platform/request"
	"github.com/veridianlabs/veridian/internal/platform/respond"
	"github.com/veridianlabs/veridian/internal/platform/validate"
)

// ResetNotifier delivers a freshly minted password-reset token to the user
// through an out-of-band channel (mail pipeline, SMS gateway).
type ResetNotifier func(ctx context.Context, email, token string)

// Handler implements the authentication HTTP endpoints.
//
// # Architecture
//
// Handlers are gatekeepers: JSON parsing, boundary validation, and response
// shaping. They contain no business logic and no storage access.
type Handler struct {
	authService   *Service
	resetNotifier ResetNotifier
	secureCookies bool
}

// NewHandler constructs an authentication [Handler].
func NewHandler(service *Service, resetNotifier ResetNotifier, secureCookies bool) *Handler {
	return &Handler{
		authService:   service,
		resetNotifier: resetNotifier,
		secureCookies: secureCookies,
	}
}

// Routes returns a [chi.Router] with the authentication endpoints.
//
// # Endpoints
//   - POST /register        : Creates a new Regular account.
//   - POST /login           : Authenticates and returns a token pair.
//   - POST /refresh         : Rotates the refresh token.
//   - POST /logout          : Revokes the presented refresh token.
//   - POST /logout-all      : Revokes every session (authenticated).
//   - POST /forgot-password : Starts password recovery.
//   - POST /reset-password  : Completes password recovery.
//   - POST /change-password : Rotates the password (authenticated).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/logout-all", handler.logoutAll)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)
	router.Post("/change-password", handler.changePassword)

	return router
}

// userResponse is the client-facing projection of a user. The password hash
// never appears here.
type userResponse struct {
	ID               string     `json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email"`
	UserType         string     `json:"user_type"`
	IsActive         bool       `json:"is_active"`
	IsEmailConfirmed bool       `json:"is_email_confirmed"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toUserResponse(user *identity.User) userResponse {
	return userResponse{
		ID:               user.ID,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Email:            user.Email.String(),
		UserType:         string(user.Type),
		IsActive:         user.IsActive,
		IsEmailConfirmed: user.IsEmailConfirmed,
		LastLoginAt:      user.LastLoginAt,
		CreatedAt:        user.CreatedAt,
	}
}

// registerRequest is the JSON payload for account creation.
type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// register handles POST /api/v1/auth/register.
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	err := validator.
		Required("first_name", input.FirstName).
		Required("last_name", input.LastName).
		Required("email", input.Email).
		Custom("password", len(input.Password) < 8, "Must be at least 8 characters").
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Password:  input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, toUserResponse(user))
}

// loginRequest is the JSON payload for authentication.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// ApplicationCode selects the tenant context. Omitted by AuthAdmins.
	ApplicationCode string `json:"application_code,omitempty"`
}

// login handles POST /api/v1/auth/login.
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.Email == "" || input.Password == "" {
		respond.Error(writer, request, validate.RequiredError("email/password", "are required"))
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:           input.Email,
		Password:        input.Password,
		ApplicationCode: input.ApplicationCode,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session)
	respond.OK(writer, handler.sessionPayload(session))
}

// refresh handles POST /api/v1/auth/refresh.
//
// The refresh token is read from the scoped cookie, with a JSON body
// fallback for non-browser clients.
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token := handler.refreshTokenFrom(request)
	if token == "" {
		respond.Error(writer, request, validate.RequiredError("refresh_token", "is required"))
		return
	}

	session, err := handler.authService.Refresh(request.Context(), token)
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session)
	respond.OK(writer, handler.sessionPayload(session))
}

// logout handles POST /api/v1/auth/logout. Always succeeds.
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if token := handler.refreshTokenFrom(request); token != "" {
		if err := handler.authService.Logout(request.Context(), token); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// logoutAll handles POST /api/v1/auth/logout-all for the authenticated user.
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.LogoutAll(request.Context(), claims.Subject); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// forgotPasswordRequest is the JSON payload for recovery initiation.
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// forgotPassword handles POST /api/v1/auth/forgot-password.
//
// Responds 204 regardless of whether the email is registered.
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.Email == "" {
		respond.Error(writer, request, validate.RequiredError("email", "is required"))
		return
	}

	if err := handler.authService.ForgotPassword(request.Context(), input.Email, handler.resetNotifier); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// resetPasswordRequest is the JSON payload for recovery completion.
type resetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// resetPassword handles POST /api/v1/auth/reset-password.
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	err := validator.
		Required("email", input.Email).
		Required("token", input.Token).
		Custom("new_password", len(input.NewPassword) < 8, "Must be at least 8 characters").
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Email, input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// changePasswordRequest is the JSON payload for an authenticated password rotation.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// changePassword handles POST /api/v1/auth/change-password.
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	err = validator.
		Required("current_password", input.CurrentPassword).
		Custom("new_password", len(input.NewPassword) < 8, "Must be at least 8 characters").
		Err()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ChangePassword(request.Context(), claims.Subject, input.CurrentPassword, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// # Session Transport

// sessionPayload shapes the token pair for the response body. The refresh
// token is duplicated in the body for clients that cannot use cookies.
func (handler *Handler) sessionPayload(session *Session) map[string]any {
	return map[string]any{
		"access_token":             session.AccessToken,
		"refresh_token":            session.RefreshToken,
		"refresh_token_expires_at": session.RefreshTokenExpiresAt,
		"user":                     toUserResponse(session.User),
	}
}

// refreshTokenFrom reads the refresh token from the scoped cookie, falling
// back to a JSON body for API clients.
func (handler *Handler) refreshTokenFrom(request *http.Request) string {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		return ""
	}
	return body.RefreshToken
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, session *Session) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
