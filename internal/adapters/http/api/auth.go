// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/meridianhq/pulse/internal/domain/model"
	"github.com/meridianhq/pulse/pkg/logger"
)

// Principal identifies the caller behind a request.
type Principal struct {
	ID   string
	Role model.Role
}

type principalKey struct{}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator resolves bearer tokens to roles from static configuration.
// With no tokens configured, enforcement is disabled and every caller acts
// as an Admin; that mode is for local development only.
type Authenticator struct {
	tokens map[string]model.Role
	logger logger.Logger
}

// NewAuthenticator builds an authenticator from a token→role map. Tokens
// with unknown roles are dropped and logged.
func NewAuthenticator(tokens map[string]string) *Authenticator {
	a := &Authenticator{
		tokens: make(map[string]model.Role, len(tokens)),
		logger: logger.Get().Named("auth"),
	}
	for token, roleName := range tokens {
		role := model.Role(roleName)
		if !role.Valid() {
			a.logger.Warn(context.Background(), "dropping auth token with unknown role",
				logger.String("role", roleName))
			continue
		}
		a.tokens[token] = role
	}
	if len(a.tokens) == 0 {
		a.logger.Warn(context.Background(), "no auth tokens configured; authentication disabled")
	}
	return a
}

// Enabled reports whether any tokens are configured.
func (a *Authenticator) Enabled() bool {
	return len(a.tokens) > 0
}

// Authenticate resolves the request's bearer token to a principal.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	if !a.Enabled() {
		return Principal{ID: "anonymous", Role: model.RoleAdmin}, nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Principal{}, ErrUnauthorized
	}
	role, ok := a.tokens[token]
	if !ok {
		return Principal{}, ErrUnauthorized
	}

	// Derive a stable identifier without keeping the raw token around.
	sum := sha256.Sum256([]byte(token))
	return Principal{ID: "tok-" + hex.EncodeToString(sum[:4]), Role: role}, nil
}

// RequireRole authenticates the request and rejects callers whose role is
// not in the allowed set. The resolved principal lands on the request
// context for handlers that record who acted.
func (a *Authenticator) RequireRole(next http.HandlerFunc, roles ...model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.authorize"

		principal, err := a.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
			return
		}

		allowed := false
		for _, role := range roles {
			if principal.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "forbidden", NewKind(op, ErrForbidden))
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
