// Package repository holds error values shared by all repository
// implementations. Concrete implementations live in repository/postgres/ and
// repository/memory/.
package repository

import "errors"

// ErrUnavailable marks store-level failures (connection loss, timeout,
// transaction abort). Callers may apply their own backoff; the engine never
// retries internally.
var ErrUnavailable = errors.New("store unavailable")
