// Package ports defines interfaces (contracts) between layers.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/procgate/domain/planet"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Metrics receives dispatch and lazy-loading observations.
type Metrics interface {
	// InFlight adjusts the number of executing calls.
	InFlight(delta int)
	// DispatchFinished records a finished call. kind is "" on success.
	DispatchFinished(path, kind string, d time.Duration)
	// DispatchUnmatched records a request no procedure matched.
	DispatchUnmatched()
	// LazyLoaded records a lazy router load attempt.
	LazyLoaded(path string, err error, d time.Duration)
}

// GuardMetrics receives observations from the auth and rate-limit
// middlewares.
type GuardMetrics interface {
	RateLimited(path string)
	AuthFailed(reason string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) InFlight(int)                                   {}
func (NopMetrics) DispatchFinished(string, string, time.Duration) {}
func (NopMetrics) DispatchUnmatched()                             {}
func (NopMetrics) LazyLoaded(string, error, time.Duration)        {}
func (NopMetrics) RateLimited(string)                             {}
func (NopMetrics) AuthFailed(string)                              {}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// Principal is the authenticated caller carried in a procedure context.
type Principal struct {
	Subject string `json:"sub"`
	Role    string `json:"role,omitempty"`
}

// TokenService issues and verifies bearer tokens.
type TokenService interface {
	Issue(p Principal) (token string, expiresAt time.Time, err error)
	Verify(token string) (Principal, error)
}

// Limiter decides whether a call identified by key may proceed. When it
// may not, retryAfter estimates how long until it would.
type Limiter interface {
	Allow(key string) (ok bool, retryAfter time.Duration)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a unique constraint is violated.
var ErrConflict = errors.New("conflict")

// PlanetStore persists planets.
type PlanetStore interface {
	// List returns up to limit planets with IDs greater than cursor,
	// ordered by ID.
	List(ctx context.Context, limit int, cursor string) ([]planet.Planet, error)
	Get(ctx context.Context, id string) (planet.Planet, error)
	Create(ctx context.Context, p planet.Planet) error
	Update(ctx context.Context, p planet.Planet) error
	Delete(ctx context.Context, id string) error
}

// UserStore looks up login credentials.
type UserStore interface {
	// PasswordHash returns the bcrypt hash stored for username.
	PasswordHash(ctx context.Context, username string) ([]byte, error)
}
