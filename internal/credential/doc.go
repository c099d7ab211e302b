// Package credential implements the gateway's credential primitives:
// scrypt password hashing with a timing-equalizing dummy hash, TOTP
// secrets and verification, and hashed backup/recovery codes.
//
// Everything that compares a secret does so in constant time. Login
// paths must never short-circuit around VerifyPassword based on whether
// the username exists; see DummyPasswordHash.
package credential
