// Package catalog is the demo planet catalog served by procgate. It shows
// a lazily loaded sub-router, declared errors with typed data, guard
// middlewares and both hand-written and CUE input schemas.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/domain/planet"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
	"github.com/artpar/procgate/ports"
	"github.com/rs/zerolog"
)

// PlanetsPrefix is the HTTP prefix of the lazily loaded planet router.
const PlanetsPrefix = "/planets"

// Deps are the services the catalog procedures use.
type Deps struct {
	Planets ports.PlanetStore
	Users   ports.UserStore
	Hasher  ports.Hasher
	Tokens  ports.TokenService
	IDs     ports.IDGenerator
	Clock   ports.Clock
	// Limiter, when set, rate-limits every procedure per caller.
	Limiter ports.Limiter
	Metrics ports.GuardMetrics
	Logger  zerolog.Logger
}

// ConflictData is the payload of a CONFLICT error.
type ConflictData struct {
	Name string `json:"name"`
}

// PlanetErrors are declared by every planet procedure.
var PlanetErrors = rpcerror.ErrorMap{
	rpcerror.CodeNotFound:     {Message: "Planet not found"},
	rpcerror.CodeConflict:     {Message: "A planet with this name already exists", Data: schema.Decode[ConflictData]()},
	rpcerror.CodeUnauthorized: {},
}

// Router returns the catalog router. The planet sub-router is built on
// first use of a path under PlanetsPrefix.
func Router(d Deps) router.Router {
	logger := d.Logger.With().Str("service", "catalog").Logger()
	s := &service{deps: d, logger: logger}

	r := router.Router{
		"ping": router.Proc(procedure.New().
			Route(procedure.Route{Method: "GET", Path: "/ping", Summary: "Liveness probe"}).
			Handler(s.ping)),
		"files": router.Sub(router.Router{
			"get": router.Proc(procedure.New().
				Route(procedure.Route{Method: "GET", Path: "/files/{+path}", Summary: "Echo a file path"}).
				Input(schema.Object{Fields: []schema.Field{{Name: "path", Type: schema.TypeString, Required: true}}}).
				Handler(s.fileGet)),
		}),
		"auth": router.Sub(router.Tag(router.Router{
			"login": router.Proc(s.loginProcedure()),
		}, "auth")),
		"planet": router.Lazily(PlanetsPrefix, func(ctx context.Context) (router.Router, error) {
			logger.Debug().Msg("loading planet router")
			return s.planetRouter(), nil
		}),
	}

	if d.Limiter != nil {
		r = router.Use(r, app.RateLimit(app.RateLimitConfig{Limiter: d.Limiter, Metrics: d.Metrics}))
	}
	return r
}

type service struct {
	deps   Deps
	logger zerolog.Logger
}

func (s *service) ping(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	return map[string]any{"pong": true, "time": s.deps.Clock.Now().UTC()}, nil
}

func (s *service) fileGet(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	return map[string]any{"path": input.(map[string]any)["path"]}, nil
}

// storeError maps store sentinels to declared errors.
func storeError(err error, opts procedure.HandlerOptions, name string) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return opts.Errors.New(rpcerror.CodeNotFound, rpcerror.ConstructorOptions{Cause: err})
	case errors.Is(err, ports.ErrConflict):
		return opts.Errors.New(rpcerror.CodeConflict, rpcerror.ConstructorOptions{
			Data:  map[string]any{"name": name},
			Cause: err,
		})
	}
	return fmt.Errorf("planet store: %w", err)
}

// DefaultPlanets are seeded into empty stores by Seed.
var DefaultPlanets = []struct {
	Name  string
	Moons int
}{
	{"Mercury", 0}, {"Venus", 0}, {"Earth", 1}, {"Mars", 2},
	{"Jupiter", 95}, {"Saturn", 146}, {"Uranus", 28}, {"Neptune", 16},
}

// Seed inserts DefaultPlanets when the store is empty.
func Seed(ctx context.Context, store ports.PlanetStore, ids ports.IDGenerator, clock ports.Clock) error {
	existing, err := store.List(ctx, 1, "")
	if err != nil {
		return fmt.Errorf("check planets: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := clock.Now().UTC()
	for _, p := range DefaultPlanets {
		if err := store.Create(ctx, planet.New(ids.New(), p.Name, "", p.Moons, "", now)); err != nil {
			return fmt.Errorf("seed %s: %w", strings.ToLower(p.Name), err)
		}
	}
	return nil
}
