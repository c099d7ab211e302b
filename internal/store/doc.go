// Package store provides persistence for gateway user accounts.
//
// The auth layer talks to users through the UserDirectory interface;
// SQLiteDirectory is the production implementation, backed by a single
// gateway_users table with WAL mode enabled. Credential material is
// stored only in derived form: scrypt password hashes, SHA-256 backup
// and recovery code hashes, and the base32 TOTP secret needed to
// validate codes. Timestamps are stored as RFC3339 text.
package store
