// Package planet is the domain of the demo catalog service.
package planet

import (
	"strings"
	"time"
)

// Planet is a catalog entry.
type Planet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Moons       int       `json:"moons"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Update describes a partial change. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
	Moons       *int
}

// Apply returns a copy of p with u applied.
func (p Planet) Apply(u Update, now time.Time) Planet {
	if u.Name != nil {
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Moons != nil {
		p.Moons = *u.Moons
	}
	p.UpdatedAt = now
	return p
}

// New creates a planet.
func New(id, name, description string, moons int, createdBy string, now time.Time) Planet {
	return Planet{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: description,
		Moons:       moons,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Page is one page of a listing.
type Page struct {
	Planets    []Planet `json:"planets"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// Paginate builds a page from up to limit+1 fetched planets.
func Paginate(fetched []Planet, limit int) Page {
	if len(fetched) <= limit {
		return Page{Planets: fetched}
	}
	page := fetched[:limit]
	return Page{Planets: page, NextCursor: page[len(page)-1].ID}
}
