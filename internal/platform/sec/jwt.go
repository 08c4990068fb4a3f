// Copyright (c) 2026 Veridian Labs. All rights reserved.

package sec

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/veridianlabs/veridian/pkg/uuidv7"
)

// # Principal Types

// Wire values of the user_type claim. They mirror the identity domain's
// asymmetric principal kinds.
const (
	UserTypeAuthAdmin = "AuthAdmin"
	UserTypeRegular   = "Regular"
)

// AccessClaims represents the payload embedded inside a signed access token.
//
// # Two Issuance Modes
//
// System-scoped tokens (AuthAdmin) carry only the subject, email, and system
// role names; their audience is the issuer itself. Tenant-scoped tokens
// (Regular) additionally pin application_id/application_code, the single
// resolved application_role, and the flattened permission list; their
// audience is the application code, so the token cannot be replayed against
// another tenant's resources.
type AccessClaims struct {
	jwt.RegisteredClaims

	Email    string `json:"email"`
	UserType string `json:"user_type"`

	// System scope (AuthAdmin only)
	SystemRoles []string `json:"roles,omitempty"`

	// Tenant scope (Regular only)
	ApplicationID   string   `json:"application_id,omitempty"`
	ApplicationCode string   `json:"application_code,omitempty"`
	ApplicationRole string   `json:"application_role,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
}

// TokenService handles generation and verification of access tokens using RS256.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewTokenService creates a new TokenService.
// It reads RSA keys from the provided filesystem paths.
func NewTokenService(privateKeyPath, publicKeyPath, issuer string) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// NewTokenServiceFromKeys wires an already-parsed key pair. Used by tests and
// by deployments that load keys from a secret manager instead of disk.
func NewTokenServiceFromKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string) *TokenService {
	return &TokenService{privateKey: privateKey, publicKey: publicKey, issuer: issuer}
}

// Issuer returns the configured 'iss' claim value.
func (service *TokenService) Issuer() string { return service.issuer }

// # Issuance

// SystemTokenInput holds the claim material for an AuthAdmin access token.
type SystemTokenInput struct {
	UserID string
	Email  string
	Roles  []string
}

// TenantTokenInput holds the claim material for a tenant-scoped access token.
type TenantTokenInput struct {
	UserID          string
	Email           string
	ApplicationID   string
	ApplicationCode string
	ApplicationRole string
	Permissions     []string
}

// GenerateSystemToken creates a signed system-scoped access token.
//
// Given identical inputs the claim set is deterministic except for jti and
// the expiry timestamps, which differ on every call.
func (service *TokenService) GenerateSystemToken(input SystemTokenInput, timeToLive time.Duration) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: service.registeredClaims(input.UserID, service.issuer, timeToLive),
		Email:            input.Email,
		UserType:         UserTypeAuthAdmin,
		SystemRoles:      input.Roles,
	}
	return service.sign(claims)
}

// GenerateTenantToken creates a signed tenant-scoped access token whose
// audience is the application code.
func (service *TokenService) GenerateTenantToken(input TenantTokenInput, timeToLive time.Duration) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: service.registeredClaims(input.UserID, input.ApplicationCode, timeToLive),
		Email:            input.Email,
		UserType:         UserTypeRegular,
		ApplicationID:    input.ApplicationID,
		ApplicationCode:  input.ApplicationCode,
		ApplicationRole:  input.ApplicationRole,
		Permissions:      input.Permissions,
	}
	return service.sign(claims)
}

// registeredClaims assembles the standard claim block shared by both modes.
func (service *TokenService) registeredClaims(subject, audience string, timeToLive time.Duration) jwt.RegisteredClaims {
	currentTime := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    service.issuer,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuidv7.New(),
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
	}
}

func (service *TokenService) sign(claims AccessClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}
	return signedToken, nil
}

// # Verification

// Verify checks the signature and validity of an access token string.
func (service *TokenService) Verify(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	}, jwt.WithIssuer(service.issuer))

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}
