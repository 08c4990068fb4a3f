// Copyright (c) 2026 Veridian Labs. All rights reserved.

// Package authn implements the authentication use cases of the identity core:
// registration, the two-mode login flow, refresh-token rotation with replay
// detection, and the password recovery lifecycle.
//
// # Architecture
//
// The service orchestrates identity aggregates and talks to storage through
// interfaces. It is technology-agnostic and does not know about HTTP or SQL.
package authn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/internal/platform/sec"
)

// # Token Material

const (
	// refreshTokenByteLength gives refresh tokens 256 bits of entropy.
	refreshTokenByteLength = 32

	// resetTokenByteLength gives password-reset tokens 256 bits of entropy.
	resetTokenByteLength = 32

	// resetTokenTTL bounds the password recovery window.
	resetTokenTTL = 30 * time.Minute
)

// TokenProvider defines the contract for issuing signed access tokens in the
// two scopes the identity core distinguishes.
type TokenProvider interface {
	// GenerateSystemToken creates a system-scoped (AuthAdmin) access token.
	GenerateSystemToken(input sec.SystemTokenInput, timeToLive time.Duration) (string, error)

	// GenerateTenantToken creates a tenant-scoped (Regular) access token
	// whose audience is the application code.
	GenerateTenantToken(input sec.TenantTokenInput, timeToLive time.Duration) (string, error)
}

// Config carries the issuance windows the service applies to new sessions.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to credential
// verification, rotation, or recovery logic must be reviewed by the security
// team.
type Service struct {
	userRepository    UserRepository
	applicationReader ApplicationReader
	refreshRepository RefreshTokenRepository
	resetRepository   ResetTokenRepository
	tokenProvider     TokenProvider
	publisher         events.Publisher
	logger            *slog.Logger
	config            Config
}

// NewService constructs an authentication [Service] with its dependencies.
func NewService(
	userRepo UserRepository,
	applicationReader ApplicationReader,
	refreshRepo RefreshTokenRepository,
	resetRepo ResetTokenRepository,
	tokenProvider TokenProvider,
	publisher events.Publisher,
	logger *slog.Logger,
	config Config,
) *Service {
	return &Service{
		userRepository:    userRepo,
		applicationReader: applicationReader,
		refreshRepository: refreshRepo,
		resetRepository:   resetRepo,
		tokenProvider:     tokenProvider,
		publisher:         publisher,
		logger:            logger,
		config:            config,
	}
}

// # Registration

// RegisterInput holds the data required to enroll a new user.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register validates, hashes, and persists a brand new Regular user.
//
// # Business Rules
//   - Emails are normalized (trimmed, lower-cased) and globally unique.
//   - The password is hashed with the iterated KDF; plaintext never leaves
//     this function.
//   - New users start active with an unconfirmed email address.
//
// Returns [apperr.Duplicate] if the email is already registered.
func (service *Service) Register(ctx context.Context, input RegisterInput) (*identity.User, error) {
	email, err := identity.NewEmail(input.Email)
	if err != nil {
		return nil, err
	}

	passwordHash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("authn_service_hash_failed: %w", err)
	}

	user, err := identity.NewUser(input.FirstName, input.LastName, email, passwordHash)
	if err != nil {
		return nil, err
	}

	// The unique index is the source of truth for duplicates; a pre-check
	// would race and leak existence through timing anyway.
	if err := service.userRepository.Create(ctx, user); err != nil {
		return nil, err
	}

	service.publisher.Publish(ctx, user.DrainEvents())
	return user, nil
}

// # Login

// LoginInput defines the credentials for an authentication attempt.
type LoginInput struct {
	Email    string
	Password string

	// ApplicationCode selects the tenant context. Required for Regular
	// users, forbidden for AuthAdmins.
	ApplicationCode string
}

// Session represents a successfully established session: a signed access
// token plus the opaque refresh token that can extend it.
type Session struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	User                  *identity.User
}

// Login verifies credentials and issues a token pair.
//
// # Two Modes
//
// AuthAdmins authenticate WITHOUT an application context and receive a
// system-scoped token. Regular users authenticate WITHIN an application
// context and receive a tenant-scoped token carrying their single resolved
// role and its flattened permissions.
//
// # Anti-Enumeration
//
// Every credential failure (unknown email, wrong password) returns the same
// generic [apperr.InvalidCredentials]; account-state errors surface only
// after the password verified.
func (service *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	email, err := identity.NewEmail(input.Email)
	if err != nil {
		return nil, apperr.InvalidCredentials()
	}

	user, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.InvalidCredentials()
	}

	matches, err := sec.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		// A corrupt stored hash is an internal fault, never a client error.
		return nil, apperr.Internal(fmt.Errorf("authn_service_verify_failed for user %s: %w", user.ID, err))
	}
	if !matches {
		return nil, apperr.InvalidCredentials()
	}

	if !user.IsActive {
		return nil, apperr.InactiveAccount()
	}

	var accessToken string
	var applicationID string

	if user.IsAuthAdmin() {
		if input.ApplicationCode != "" {
			return nil, apperr.UnexpectedApplicationContext()
		}
		accessToken, err = service.tokenProvider.GenerateSystemToken(sec.SystemTokenInput{
			UserID: user.ID,
			Email:  user.Email.String(),
			Roles:  []string{string(identity.UserTypeAuthAdmin)},
		}, service.config.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("authn_service_system_token_failed: %w", err)
		}
	} else {
		if input.ApplicationCode == "" {
			return nil, apperr.ValidationError("Validation failed",
				apperr.FieldError{Field: "application_code", Message: "This field is required"})
		}

		tenantContext, err := service.resolveTenantContext(ctx, user, input.ApplicationCode)
		if err != nil {
			return nil, err
		}

		accessToken, err = service.tokenProvider.GenerateTenantToken(*tenantContext, service.config.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("authn_service_tenant_token_failed: %w", err)
		}
		applicationID = tenantContext.ApplicationID

		if err := service.applicationReader.TouchMembership(ctx, applicationID, user.ID, time.Now()); err != nil {
			service.logger.WarnContext(ctx, "membership_stamp_failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	session, err := service.issueRefreshToken(ctx, user, applicationID)
	if err != nil {
		return nil, err
	}
	session.AccessToken = accessToken

	user.RecordLogin(time.Now())
	if err := service.userRepository.Update(ctx, user); err != nil {
		// Losing the last-login stamp must not fail an otherwise valid login.
		service.logger.WarnContext(ctx, "login_stamp_failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return session, nil
}

// resolveTenantContext checks the user's access to the named application and
// assembles the tenant-scoped claim material.
func (service *Service) resolveTenantContext(ctx context.Context, user *identity.User, rawCode string) (*sec.TenantTokenInput, error) {
	code, err := identity.NewApplicationCode(rawCode)
	if err != nil {
		return nil, err
	}

	application, err := service.applicationReader.FindByCode(ctx, code)
	if err != nil {
		// Whether the tenant is unknown or the user merely lacks access is
		// deliberately indistinguishable to the caller.
		return nil, apperr.NoApplicationAccess()
	}
	return service.tenantClaims(ctx, user, application)
}

// tenantClaims validates membership against a loaded application aggregate
// and touches the membership access stamp.
func (service *Service) tenantClaims(ctx context.Context, user *identity.User, application *identity.Application) (*sec.TenantTokenInput, error) {
	if !application.IsActive {
		return nil, apperr.NoApplicationAccess()
	}

	membership := application.MembershipOf(user.ID)
	if membership == nil || !membership.IsActive {
		return nil, apperr.NoApplicationAccess()
	}

	role, err := application.RoleByID(membership.RoleID)
	if err != nil || !role.IsActive {
		return nil, apperr.NoApplicationAccess()
	}

	membership.Touch(time.Now())

	return &sec.TenantTokenInput{
		UserID:          user.ID,
		Email:           user.Email.String(),
		ApplicationID:   application.ID,
		ApplicationCode: application.Code.String(),
		ApplicationRole: role.Name,
		Permissions:     role.PermissionKeys(),
	}, nil
}

// issueRefreshToken mints a new rotation-chain head for the user.
func (service *Service) issueRefreshToken(ctx context.Context, user *identity.User, applicationID string) (*Session, error) {
	plaintext, err := sec.GenerateSecureToken(refreshTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("authn_service_refresh_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(service.config.RefreshTokenTTL)
	token := identity.NewRefreshToken(user.ID, sec.HashToken(plaintext), applicationID, expiresAt)

	if err := service.refreshRepository.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("authn_service_refresh_store_failed: %w", err)
	}

	return &Session{
		RefreshToken:          plaintext,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
	}, nil
}

// # Refresh Rotation

// Refresh implements refresh-token rotation with replay detection.
//
// # Flow
//  1. Resolve the presented token by digest. Unknown or expired tokens fail
//     with [apperr.InvalidToken].
//  2. A revoked token is treated as theft: the entire rotation chain is
//     revoked and [apperr.TokenReuseDetected] is returned.
//  3. Otherwise the token is claimed and replaced by a successor in one
//     transaction, and a fresh token pair is issued. The tenant context is
//     re-resolved from current state, so access revoked since login takes
//     effect at the next refresh.
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	presented, err := service.refreshRepository.FindByHash(ctx, sec.HashToken(refreshToken))
	if err != nil {
		return nil, apperr.InvalidToken()
	}

	now := time.Now()

	if presented.Revoked {
		// Replay of an already-rotated token. Whoever holds the live tail of
		// this chain may be the thief, so the whole chain dies.
		if err := service.refreshRepository.RevokeChain(ctx, presented.ID, now); err != nil {
			return nil, fmt.Errorf("authn_service_chain_revoke_failed: %w", err)
		}
		service.logger.WarnContext(ctx, "refresh_token_reuse_detected",
			slog.String("user_id", presented.UserID),
			slog.String("token_id", presented.ID),
		)
		return nil, apperr.TokenReuseDetected()
	}

	if presented.IsExpired(now) {
		return nil, apperr.InvalidToken()
	}

	user, err := service.userRepository.FindByID(ctx, presented.UserID)
	if err != nil {
		return nil, apperr.InvalidToken()
	}
	if !user.IsActive {
		service.revokeQuietly(ctx, presented.ID, now)
		return nil, apperr.InactiveAccount()
	}

	// Re-resolve the access context from current state.
	var accessToken string
	if presented.ApplicationID == "" {
		if !user.IsAuthAdmin() {
			service.revokeQuietly(ctx, presented.ID, now)
			return nil, apperr.InvalidToken()
		}
		accessToken, err = service.tokenProvider.GenerateSystemToken(sec.SystemTokenInput{
			UserID: user.ID,
			Email:  user.Email.String(),
			Roles:  []string{string(identity.UserTypeAuthAdmin)},
		}, service.config.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("authn_service_system_token_failed: %w", err)
		}
	} else {
		application, err := service.applicationReader.FindByID(ctx, presented.ApplicationID)
		if err != nil {
			service.revokeQuietly(ctx, presented.ID, now)
			return nil, apperr.NoApplicationAccess()
		}
		tenantContext, err := service.tenantClaims(ctx, user, application)
		if err != nil {
			service.revokeQuietly(ctx, presented.ID, now)
			return nil, err
		}
		accessToken, err = service.tokenProvider.GenerateTenantToken(*tenantContext, service.config.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("authn_service_tenant_token_failed: %w", err)
		}
	}

	// Mint the successor and rotate atomically.
	plaintext, err := sec.GenerateSecureToken(refreshTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("authn_service_refresh_token_failed: %w", err)
	}

	expiresAt := now.Add(service.config.RefreshTokenTTL)
	successor := identity.NewRefreshToken(user.ID, sec.HashToken(plaintext), presented.ApplicationID, expiresAt)

	if err := service.refreshRepository.Rotate(ctx, presented, successor); err != nil {
		if apperr.IsCode(err, apperr.CodeInvalidToken) {
			// A concurrent rotation won the claim; this request is now a
			// replay of a revoked token.
			if chainErr := service.refreshRepository.RevokeChain(ctx, presented.ID, now); chainErr != nil {
				return nil, fmt.Errorf("authn_service_chain_revoke_failed: %w", chainErr)
			}
			return nil, apperr.TokenReuseDetected()
		}
		return nil, fmt.Errorf("authn_service_rotate_failed: %w", err)
	}

	return &Session{
		AccessToken:           accessToken,
		RefreshToken:          plaintext,
		RefreshTokenExpiresAt: expiresAt,
		User:                  user,
	}, nil
}

// revokeQuietly revokes a token on a failure path where the primary error is
// already decided; a storage failure here is logged, not returned.
func (service *Service) revokeQuietly(ctx context.Context, tokenID string, at time.Time) {
	if err := service.refreshRepository.Revoke(ctx, tokenID, at); err != nil {
		service.logger.WarnContext(ctx, "refresh_token_revoke_failed",
			slog.String("token_id", tokenID), slog.Any("error", err))
	}
}

// # Sign-Out

// Logout revokes the presented refresh token. Logging out with an unknown or
// already-revoked token succeeds: the operation is idempotent.
func (service *Service) Logout(ctx context.Context, refreshToken string) error {
	token, err := service.refreshRepository.FindByHash(ctx, sec.HashToken(refreshToken))
	if err != nil {
		return nil
	}

	if err := service.refreshRepository.Revoke(ctx, token.ID, time.Now()); err != nil {
		return fmt.Errorf("authn_service_logout_failed: %w", err)
	}
	return nil
}

// LogoutAll revokes every live refresh token of the user, terminating all
// sessions across every device and tenant.
func (service *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := service.refreshRepository.RevokeAllForUser(ctx, userID, time.Now()); err != nil {
		return fmt.Errorf("authn_service_logout_all_failed: %w", err)
	}
	return nil
}

// # Password Recovery

// ForgotPassword starts the password recovery flow.
//
// # Anti-Enumeration
//
// The operation reports success regardless of whether the email is
// registered; a live reset token is minted only for active accounts. A user
// holds at most one live reset token: a second request replaces the first.
//
// The plaintext token leaves through the delivery channel only (it is handed
// to the notifier), never through the API response or the event stream.
func (service *Service) ForgotPassword(ctx context.Context, rawEmail string, notify func(ctx context.Context, email, token string)) error {
	email, err := identity.NewEmail(rawEmail)
	if err != nil {
		return nil
	}

	user, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil || !user.IsActive {
		return nil
	}

	plaintext, err := sec.GenerateSecureToken(resetTokenByteLength)
	if err != nil {
		return fmt.Errorf("authn_service_reset_token_failed: %w", err)
	}

	if err := service.resetRepository.Set(ctx, user.ID, sec.HashToken(plaintext), resetTokenTTL); err != nil {
		return fmt.Errorf("authn_service_reset_store_failed: %w", err)
	}

	if notify != nil {
		notify(ctx, user.Email.String(), plaintext)
	}

	service.publisher.Publish(ctx, []events.Event{{
		Name:       "user.password_reset_requested",
		OccurredAt: time.Now(),
		Payload:    map[string]any{"user_id": user.ID},
	}})

	return nil
}

// ResetPassword completes the recovery flow.
//
// The token is verified against the stored digest in constant time. Any
// failure (unknown email, missing, expired, or wrong token) returns the same
// [apperr.InvalidToken]. On success the token is consumed and every live
// session of the user is revoked.
func (service *Service) ResetPassword(ctx context.Context, rawEmail, token, newPassword string) error {
	email, err := identity.NewEmail(rawEmail)
	if err != nil {
		return apperr.InvalidToken()
	}

	user, err := service.userRepository.FindByEmail(ctx, email)
	if err != nil || !user.IsActive {
		return apperr.InvalidToken()
	}

	storedHash, err := service.resetRepository.Get(ctx, user.ID)
	if err != nil {
		return apperr.InvalidToken()
	}
	if !sec.VerifyToken(token, storedHash) {
		return apperr.InvalidToken()
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("authn_service_hash_failed: %w", err)
	}

	if err := service.userRepository.UpdatePassword(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("authn_service_reset_update_failed: %w", err)
	}

	// Single use: the token dies with the password it reset.
	if err := service.resetRepository.Delete(ctx, user.ID); err != nil {
		service.logger.WarnContext(ctx, "reset_token_delete_failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	if err := service.refreshRepository.RevokeAllForUser(ctx, user.ID, time.Now()); err != nil {
		return fmt.Errorf("authn_service_reset_revoke_failed: %w", err)
	}

	service.publisher.Publish(ctx, []events.Event{{
		Name:       "user.password_reset",
		OccurredAt: time.Now(),
		Payload:    map[string]any{"user_id": user.ID},
	}})

	return nil
}

// ChangePassword replaces the password of an authenticated user after
// verifying the current one, then revokes every live session so stolen
// refresh tokens die with the old credential.
func (service *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.userRepository.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	matches, err := sec.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return apperr.Internal(fmt.Errorf("authn_service_verify_failed for user %s: %w", user.ID, err))
	}
	if !matches {
		return apperr.InvalidCredentials()
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("authn_service_hash_failed: %w", err)
	}

	if err := user.ChangePassword(newHash); err != nil {
		return err
	}
	if err := service.userRepository.UpdatePassword(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("authn_service_change_update_failed: %w", err)
	}

	if err := service.refreshRepository.RevokeAllForUser(ctx, user.ID, time.Now()); err != nil {
		return fmt.Errorf("authn_service_change_revoke_failed: %w", err)
	}

	service.publisher.Publish(ctx, user.DrainEvents())
	return nil
}
