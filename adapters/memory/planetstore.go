// Package memory provides in-memory implementations of the store and
// limiter ports. The stores back tests and the zero-config demo server.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/procgate/domain/planet"
	"github.com/artpar/procgate/ports"
)

// PlanetStore is an in-memory implementation of ports.PlanetStore.
type PlanetStore struct {
	mu      sync.RWMutex
	planets map[string]planet.Planet // by ID
	byName  map[string]string        // lower-cased name -> ID
}

// NewPlanetStore creates an empty planet store.
func NewPlanetStore() *PlanetStore {
	return &PlanetStore{
		planets: make(map[string]planet.Planet),
		byName:  make(map[string]string),
	}
}

// List returns up to limit planets with IDs after cursor, ordered by ID.
func (s *PlanetStore) List(ctx context.Context, limit int, cursor string) ([]planet.Planet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]planet.Planet, 0, len(s.planets))
	for id, p := range s.planets {
		if id > cursor {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get retrieves a planet by ID.
func (s *PlanetStore) Get(ctx context.Context, id string) (planet.Planet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.planets[id]
	if !ok {
		return planet.Planet{}, ports.ErrNotFound
	}
	return p, nil
}

// Create stores a new planet. Names are unique, case-insensitively.
func (s *PlanetStore) Create(ctx context.Context, p planet.Planet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.planets[p.ID]; exists {
		return ports.ErrConflict
	}
	key := strings.ToLower(p.Name)
	if _, exists := s.byName[key]; exists {
		return ports.ErrConflict
	}
	s.planets[p.ID] = p
	s.byName[key] = p.ID
	return nil
}

// Update replaces an existing planet.
func (s *PlanetStore) Update(ctx context.Context, p planet.Planet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.planets[p.ID]
	if !ok {
		return ports.ErrNotFound
	}
	oldKey, newKey := strings.ToLower(old.Name), strings.ToLower(p.Name)
	if oldKey != newKey {
		if _, taken := s.byName[newKey]; taken {
			return ports.ErrConflict
		}
		delete(s.byName, oldKey)
		s.byName[newKey] = p.ID
	}
	s.planets[p.ID] = p
	return nil
}

// Delete removes a planet.
func (s *PlanetStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.planets[id]
	if !ok {
		return ports.ErrNotFound
	}
	delete(s.planets, id)
	delete(s.byName, strings.ToLower(p.Name))
	return nil
}

// HealthCheck always succeeds.
func (s *PlanetStore) HealthCheck(ctx context.Context) error {
	return nil
}

var _ ports.PlanetStore = (*PlanetStore)(nil)

// UserStore is an in-memory implementation of ports.UserStore.
type UserStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{hashes: make(map[string][]byte)}
}

// Put sets the password hash of username.
func (s *UserStore) Put(username string, hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[username] = hash
}

// PasswordHash returns the hash stored for username.
func (s *UserStore) PasswordHash(ctx context.Context, username string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hashes[username]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return h, nil
}

var _ ports.UserStore = (*UserStore)(nil)
