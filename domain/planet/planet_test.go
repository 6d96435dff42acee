package planet_test

import (
	"testing"
	"time"

	"github.com/artpar/procgate/domain/planet"
)

func TestApply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	p := planet.New("p1", "  Mars ", "red", 2, "admin", created)

	if p.Name != "Mars" {
		t.Errorf("Name = %q, want trimmed", p.Name)
	}

	name, moons := " Ares ", 3
	got := p.Apply(planet.Update{Name: &name, Moons: &moons}, later)

	if got.Name != "Ares" || got.Moons != 3 || got.Description != "red" {
		t.Errorf("Apply = %+v", got)
	}
	if !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(created) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
	if p.Name != "Mars" {
		t.Error("Apply modified the receiver")
	}
}

func TestPaginate(t *testing.T) {
	mk := func(ids ...string) []planet.Planet {
		out := make([]planet.Planet, len(ids))
		for i, id := range ids {
			out[i] = planet.Planet{ID: id}
		}
		return out
	}

	tests := []struct {
		name       string
		fetched    []planet.Planet
		limit      int
		wantLen    int
		wantCursor string
	}{
		{"empty", nil, 2, 0, ""},
		{"short page", mk("a"), 2, 1, ""},
		{"exact page", mk("a", "b"), 2, 2, ""},
		{"more available", mk("a", "b", "c"), 2, 2, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := planet.Paginate(tt.fetched, tt.limit)
			if len(page.Planets) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(page.Planets), tt.wantLen)
			}
			if page.NextCursor != tt.wantCursor {
				t.Errorf("NextCursor = %q, want %q", page.NextCursor, tt.wantCursor)
			}
		})
	}
}
