// Package gateway assembles the authentication subsystem into a
// runnable HTTP server.
//
// # Wiring
//
// New builds the component graph:
//
//   - store.SQLiteDirectory: the user directory
//   - session.Manager: in-memory sessions with encrypted snapshots
//   - ratelimit.Limiter: per-IP login attempt limiting
//   - auth.TokenManager: HS256 handoff tokens
//   - webauth.Handler: the /auth HTTP surface
//
// All handlers hang off one http.ServeMux wrapped by the middleware
// chain, outermost first:
//
//	recoverPanics -> logRequests -> CSRFProtect -> mux
//
// # Lifecycle
//
// Run listens, starts the janitor, and blocks until the context is
// canceled or the listener fails. A janitor ticker sweeps expired
// sessions and stale rate-limit buckets.
//
// Shutdown order matters: the HTTP server drains first, then the
// session manager closes (writing its final snapshot), then the
// directory. Run performs this sequence itself with a fresh timeout
// context once its own context is canceled.
//
// # Health
//
// GET /health reports liveness. GET /health/ready additionally proves
// the user directory answers queries.
package gateway
