// ABOUTME: SQLite implementation of the UserDirectory interface using modernc.org/sqlite
// ABOUTME: Provides gateway user persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDirectory implements the UserDirectory interface using SQLite.
type SQLiteDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteDirectory implements UserDirectory.
var _ UserDirectory = (*SQLiteDirectory)(nil)

// NewSQLiteDirectory creates a new SQLite user directory at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteDirectory(path string) (*SQLiteDirectory, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	d := &SQLiteDirectory{
		db:     db,
		logger: logger,
	}

	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite user directory initialized", "path", path)
	return d, nil
}

// createSchema creates the database tables if they don't exist
func (d *SQLiteDirectory) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS gateway_users (
			id                  TEXT PRIMARY KEY,
			username            TEXT UNIQUE NOT NULL,
			display_name        TEXT NOT NULL,
			password_hash       TEXT NOT NULL,
			role                TEXT NOT NULL,
			recovery_code_hash  TEXT,
			totp_secret         TEXT,
			totp_enabled        INTEGER NOT NULL DEFAULT 0,
			backup_code_hashes  TEXT,
			last_used_totp_code TEXT,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,

			CHECK (role IN ('admin', 'operator', 'viewer'))
		);

		CREATE INDEX IF NOT EXISTS idx_gateway_users_username ON gateway_users(username);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *SQLiteDirectory) Close() error {
	d.logger.Info("closing user directory")
	return d.db.Close()
}

// CreateUser creates a new gateway user.
// Returns ErrUsernameExists if the username is taken.
func (d *SQLiteDirectory) CreateUser(ctx context.Context, user *GatewayUser) error {
	backupHashes, err := marshalBackupHashes(user.BackupCodeHashes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO gateway_users (
			id, username, display_name, password_hash, role,
			recovery_code_hash, totp_secret, totp_enabled,
			backup_code_hashes, last_used_totp_code, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		nullableString(user.RecoveryCodeHash),
		nullableString(user.TotpSecret),
		user.TotpEnabled,
		backupHashes,
		nullableString(user.LastUsedTotpCode),
		user.CreatedAt.UTC().Format(time.RFC3339),
		user.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		// Check for unique constraint violation
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting gateway user: %w", err)
	}

	d.logger.Info("created gateway user", "id", user.ID, "username", user.Username, "role", user.Role)
	return nil
}

// GetUser retrieves a gateway user by username.
func (d *SQLiteDirectory) GetUser(ctx context.Context, username string) (*GatewayUser, error) {
	query := `
		SELECT id, username, display_name, password_hash, role,
		       recovery_code_hash, totp_secret, totp_enabled,
		       backup_code_hashes, last_used_totp_code, created_at, updated_at
		FROM gateway_users
		WHERE username = ?
	`

	row := d.db.QueryRowContext(ctx, query, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying gateway user: %w", err)
	}
	return user, nil
}

// UpdateUserPassword updates a gateway user's password hash.
func (d *SQLiteDirectory) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	query := `UPDATE gateway_users SET password_hash = ?, updated_at = ? WHERE username = ?`

	result, err := d.db.ExecContext(ctx, query, passwordHash, nowRFC3339(), username)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	if err := requireRowAffected(result); err != nil {
		return err
	}

	d.logger.Info("updated gateway user password", "username", username)
	return nil
}

// UpdateUserRecoveryCode replaces a gateway user's recovery code hash.
func (d *SQLiteDirectory) UpdateUserRecoveryCode(ctx context.Context, username, recoveryCodeHash string) error {
	query := `UPDATE gateway_users SET recovery_code_hash = ?, updated_at = ? WHERE username = ?`

	result, err := d.db.ExecContext(ctx, query, nullableString(recoveryCodeHash), nowRFC3339(), username)
	if err != nil {
		return fmt.Errorf("updating user recovery code: %w", err)
	}
	if err := requireRowAffected(result); err != nil {
		return err
	}

	d.logger.Info("updated gateway user recovery code", "username", username)
	return nil
}

// UpdateUserTotp writes a user's TOTP settings as a unit.
func (d *SQLiteDirectory) UpdateUserTotp(ctx context.Context, username string, settings TotpSettings) error {
	backupHashes, err := marshalBackupHashes(settings.BackupCodeHashes)
	if err != nil {
		return err
	}

	query := `
		UPDATE gateway_users
		SET totp_secret = ?, totp_enabled = ?, backup_code_hashes = ?,
		    last_used_totp_code = ?, updated_at = ?
		WHERE username = ?
	`

	result, err := d.db.ExecContext(ctx, query,
		nullableString(settings.Secret),
		settings.Enabled,
		backupHashes,
		nullableString(settings.LastUsedCode),
		nowRFC3339(),
		username,
	)
	if err != nil {
		return fmt.Errorf("updating user totp settings: %w", err)
	}
	return requireRowAffected(result)
}

// ListUsers returns all gateway users ordered by creation time.
func (d *SQLiteDirectory) ListUsers(ctx context.Context) ([]*GatewayUser, error) {
	query := `
		SELECT id, username, display_name, password_hash, role,
		       recovery_code_hash, totp_secret, totp_enabled,
		       backup_code_hashes, last_used_totp_code, created_at, updated_at
		FROM gateway_users
		ORDER BY created_at ASC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying gateway users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*GatewayUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateway users: %w", err)
	}

	return users, nil
}

// CountUsers returns the number of gateway users.
func (d *SQLiteDirectory) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gateway_users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting gateway users: %w", err)
	}
	return count, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*GatewayUser, error) {
	var user GatewayUser
	var recoveryHash, totpSecret, backupHashes, lastUsedCode sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&recoveryHash,
		&totpSecret,
		&user.TotpEnabled,
		&backupHashes,
		&lastUsedCode,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	user.RecoveryCodeHash = recoveryHash.String
	user.TotpSecret = totpSecret.String
	user.LastUsedTotpCode = lastUsedCode.String

	if backupHashes.Valid && backupHashes.String != "" {
		if err := json.Unmarshal([]byte(backupHashes.String), &user.BackupCodeHashes); err != nil {
			return nil, fmt.Errorf("parsing backup_code_hashes: %w", err)
		}
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	user.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &user, nil
}

// marshalBackupHashes encodes backup code hashes as a JSON array column.
// A nil or empty slice is stored as NULL.
func marshalBackupHashes(hashes []string) (sql.NullString, error) {
	if len(hashes) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding backup_code_hashes: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
