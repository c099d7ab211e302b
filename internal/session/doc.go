// Package session owns the gateway's live authentication sessions.
//
// A Manager holds the session map in memory and mirrors it to an
// encrypted snapshot on disk so a restart does not sign everyone out.
// Writes are debounced; Flush and Close write immediately. Reads of the
// snapshot fail open: if the file is missing, tampered with, or sealed
// under a lost key, the gateway starts with zero sessions instead of
// refusing to start.
//
// On-disk layout under the data directory:
//
//	credentials/session-encryption-key   hex-encoded 32-byte AES key
//	sessions/auth-sessions.enc           AES-256-GCM sealed session map
//
// Refreshing a session slides its expiry forward and rotates the
// session ID; an idle session eventually dies, an active one never
// does.
package session
