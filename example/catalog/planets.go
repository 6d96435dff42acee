package catalog

import (
	"context"
	"net/http"

	"github.com/artpar/procgate/adapters/cueschema"
	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/planet"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/domain/schema"
)

const planetSchemas = `
#NewPlanet: {
	name:         string & =~"^\\S"
	description?: string
	moons:        *0 | (int & >=0)
}
`

var newPlanetSchema = cueschema.MustCompile(planetSchemas, "#NewPlanet")

// ListInput is the input of planet.list.
type ListInput struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// FindInput is the input of planet.find.
type FindInput struct {
	ID string `json:"id"`
}

// CreateInput is the input of planet.create.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Moons       int    `json:"moons"`
}

// UpdateInput is the input of planet.update. Absent fields are unchanged.
type UpdateInput struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Moons       *int    `json:"moons"`
}

var idInput = schema.Object{Fields: []schema.Field{
	{Name: "id", Type: schema.TypeString, Required: true, MinLength: 1},
}}

func (s *service) planetRouter() router.Router {
	authed := app.Auth(app.AuthConfig{Tokens: s.deps.Tokens, Metrics: s.deps.Metrics})
	admin := app.Auth(app.AuthConfig{Tokens: s.deps.Tokens, Roles: []string{"admin"}, Metrics: s.deps.Metrics})

	r := router.Router{
		"list": router.Proc(procedure.New().
			Route(procedure.Route{Method: "GET", Path: "/", Summary: "List planets"}).
			Input(schema.Chain(
				schema.Object{Optional: true, Fields: []schema.Field{
					{Name: "limit", Type: schema.TypeInteger, Default: int64(20), Min: schema.Bound(1), Max: schema.Bound(100)},
					{Name: "cursor", Type: schema.TypeString},
				}},
				schema.Decode[ListInput](),
			)).
			Handler(s.list)),
		"find": router.Proc(procedure.New().
			Route(procedure.Route{Method: "GET", Path: "/{id}", Summary: "Find a planet"}).
			Input(schema.Chain(idInput, schema.Decode[FindInput]())).
			Handler(s.find)),
		"create": router.Proc(procedure.New().
			Route(procedure.Route{Method: "POST", Path: "/", Summary: "Create a planet", SuccessStatus: http.StatusCreated}).
			Use(authed).
			Input(schema.Chain(newPlanetSchema, schema.Decode[CreateInput]())).
			Handler(s.create)),
		"update": router.Proc(procedure.New().
			Route(procedure.Route{Method: "PUT", Path: "/{id}", Summary: "Update a planet"}).
			Use(authed).
			Input(schema.Chain(
				schema.Object{Fields: []schema.Field{
					{Name: "id", Type: schema.TypeString, Required: true, MinLength: 1},
					{Name: "name", Type: schema.TypeString, MinLength: 1},
					{Name: "description", Type: schema.TypeString},
					{Name: "moons", Type: schema.TypeInteger, Min: schema.Bound(0)},
				}},
				schema.Decode[UpdateInput](),
			)).
			Handler(s.update)),
		"delete": router.Proc(procedure.New().
			Route(procedure.Route{Method: "DELETE", Path: "/{id}", Summary: "Delete a planet", SuccessStatus: http.StatusNoContent}).
			Use(admin).
			Input(idInput).
			Handler(s.delete)),
	}

	return router.Enhance(r, router.Options{
		Prefix:   PlanetsPrefix,
		Tags:     []string{"planets"},
		ErrorMap: PlanetErrors,
	})
}

func (s *service) list(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	in := input.(ListInput)
	fetched, err := s.deps.Planets.List(ctx, in.Limit+1, in.Cursor)
	if err != nil {
		return nil, storeError(err, opts, "")
	}
	page := planet.Paginate(fetched, in.Limit)
	if page.Planets == nil {
		page.Planets = []planet.Planet{}
	}
	return page, nil
}

func (s *service) find(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	p, err := s.deps.Planets.Get(ctx, input.(FindInput).ID)
	if err != nil {
		return nil, storeError(err, opts, "")
	}
	return p, nil
}

func (s *service) create(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	in := input.(CreateInput)
	user, _ := app.PrincipalFrom(opts.Context)

	p := planet.New(s.deps.IDs.New(), in.Name, in.Description, in.Moons, user.Subject, s.deps.Clock.Now().UTC())
	if err := s.deps.Planets.Create(ctx, p); err != nil {
		return nil, storeError(err, opts, p.Name)
	}

	s.logger.Info().
		Str("planet_id", p.ID).
		Str("name", p.Name).
		Str("user", user.Subject).
		Msg("planet created")
	return p, nil
}

func (s *service) update(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	in := input.(UpdateInput)

	current, err := s.deps.Planets.Get(ctx, in.ID)
	if err != nil {
		return nil, storeError(err, opts, "")
	}
	next := current.Apply(planet.Update{
		Name:        in.Name,
		Description: in.Description,
		Moons:       in.Moons,
	}, s.deps.Clock.Now().UTC())

	if err := s.deps.Planets.Update(ctx, next); err != nil {
		return nil, storeError(err, opts, next.Name)
	}
	return next, nil
}

func (s *service) delete(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	id := input.(map[string]any)["id"].(string)
	if err := s.deps.Planets.Delete(ctx, id); err != nil {
		return nil, storeError(err, opts, "")
	}

	user, _ := app.PrincipalFrom(opts.Context)
	s.logger.Info().Str("planet_id", id).Str("user", user.Subject).Msg("planet deleted")
	return nil, nil
}
