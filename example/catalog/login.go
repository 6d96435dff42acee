package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
	"github.com/artpar/procgate/ports"
)

// LoginInput is the input of auth.login.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginOutput is the output of auth.login.
type LoginOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminUser is granted the admin role on login.
const AdminUser = "admin"

func (s *service) loginProcedure() *procedure.Procedure {
	return procedure.New().
		Route(procedure.Route{Method: "POST", Path: "/auth/login", Summary: "Exchange credentials for a bearer token"}).
		Errors(rpcerror.ErrorMap{rpcerror.CodeUnauthorized: {Message: "Invalid username or password"}}).
		Input(schema.Chain(
			schema.Object{Strict: true, Fields: []schema.Field{
				{Name: "username", Type: schema.TypeString, Required: true, MinLength: 1},
				{Name: "password", Type: schema.TypeString, Required: true, MinLength: 1},
			}},
			schema.Decode[LoginInput](),
		)).
		Handler(s.login)
}

func (s *service) login(ctx context.Context, input any, opts procedure.HandlerOptions) (any, error) {
	in := input.(LoginInput)

	hash, err := s.deps.Users.PasswordHash(ctx, in.Username)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}
	if !s.deps.Hasher.Compare(hash, in.Password) {
		s.logger.Warn().Str("user", in.Username).Msg("login failed")
		return nil, opts.Errors.New(rpcerror.CodeUnauthorized, rpcerror.ConstructorOptions{})
	}

	role := "user"
	if in.Username == AdminUser {
		role = "admin"
	}
	token, expiresAt, err := s.deps.Tokens.Issue(ports.Principal{Subject: in.Username, Role: role})
	if err != nil {
		return nil, err
	}
	return LoginOutput{Token: token, ExpiresAt: expiresAt}, nil
}
