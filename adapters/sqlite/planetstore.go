package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/procgate/domain/planet"
	"github.com/artpar/procgate/ports"
)

// PlanetStore implements ports.PlanetStore using SQLite.
type PlanetStore struct {
	db *DB
}

// NewPlanetStore creates a SQLite planet store.
func NewPlanetStore(db *DB) *PlanetStore {
	return &PlanetStore{db: db}
}

const planetColumns = `id, name, description, moons, created_by, created_at, updated_at`

// List returns up to limit planets with IDs after cursor, ordered by ID.
func (s *PlanetStore) List(ctx context.Context, limit int, cursor string) ([]planet.Planet, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planetColumns+`
		FROM planets
		WHERE id > ?
		ORDER BY id
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planet.Planet
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get retrieves a planet by ID.
func (s *PlanetStore) Get(ctx context.Context, id string) (planet.Planet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planetColumns+` FROM planets WHERE id = ?`, id)
	p, err := scanPlanet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return planet.Planet{}, ports.ErrNotFound
	}
	return p, err
}

// Create stores a new planet. Names are unique, case-insensitively.
func (s *PlanetStore) Create(ctx context.Context, p planet.Planet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO planets (`+planetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Moons, p.CreatedBy, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if isUniqueConstraintError(err) {
		return ports.ErrConflict
	}
	return err
}

// Update replaces an existing planet.
func (s *PlanetStore) Update(ctx context.Context, p planet.Planet) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE planets
		SET name = ?, description = ?, moons = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Description, p.Moons, p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ports.ErrConflict
		}
		return err
	}
	return requireRow(result)
}

// Delete removes a planet.
func (s *PlanetStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM planets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlanet(row scanner) (planet.Planet, error) {
	var p planet.Planet
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Moons, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

var _ ports.PlanetStore = (*PlanetStore)(nil)
