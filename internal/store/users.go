// ABOUTME: Gateway user types and the UserDirectory persistence interface
// ABOUTME: Users carry password, TOTP, and recovery credential material

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a gateway user doesn't exist.
var ErrUserNotFound = errors.New("gateway user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// GatewayUser represents a human operator who can sign in to the gateway.
type GatewayUser struct {
	ID               string
	Username         string
	DisplayName      string
	PasswordHash     string
	Role             string
	RecoveryCodeHash string // empty if no recovery code issued
	TotpSecret       string // base32, empty until TOTP setup begins
	TotpEnabled      bool
	BackupCodeHashes []string
	LastUsedTotpCode string // most recently accepted code, for replay rejection
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TotpSettings holds the TOTP-related fields written together on every
// TOTP mutation: enrollment, login (code replay tracking), backup code
// consumption, and disablement.
type TotpSettings struct {
	Secret           string
	Enabled          bool
	BackupCodeHashes []string
	LastUsedCode     string
}

// UserDirectory defines the interface for gateway user persistence.
// The auth layer depends on this interface, never on a concrete store.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *GatewayUser) error
	GetUser(ctx context.Context, username string) (*GatewayUser, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
	UpdateUserRecoveryCode(ctx context.Context, username, recoveryCodeHash string) error
	UpdateUserTotp(ctx context.Context, username string, settings TotpSettings) error
	ListUsers(ctx context.Context) ([]*GatewayUser, error)
	CountUsers(ctx context.Context) (int, error)
	Close() error
}
