package api

import (
	"context"
	"net/http"
	"strings"

	"project-recommender/internal/common/auth"
	"project-recommender/internal/common/errors"
)

type ctxKey struct{}

// WithUserID returns ctx carrying the acting user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom returns the acting user, "" for anonymous requests.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Identifier resolves the acting user of a request. It returns "" with a nil
// error when the request carries no identity at all.
type Identifier interface {
	Identify(r *http.Request) (string, error)
}

// HeaderIdentity trusts a user id header set by the gateway.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) Identify(r *http.Request) (string, error) {
	return strings.TrimSpace(r.Header.Get(h.Header)), nil
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// TokenIdentity resolves bearer tokens through Keycloak introspection.
type TokenIdentity struct {
	Validator TokenValidator
}

func (t TokenIdentity) Identify(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.NewUnauthenticatedError("authorization header must be a bearer token")
	}
	info, err := t.Validator.ValidateToken(r.Context(), strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	return info.Sub, nil
}

// identify attaches the acting user to the request context. Anonymous
// requests pass through; broken credentials are rejected.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.Identify(r)
		if err != nil {
			s.errors.WriteError(w, r, err)
			return
		}
		if userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFrom(r.Context()) == "" {
			s.errors.WriteError(w, r, errors.NewUnauthenticatedError("this endpoint requires an acting user"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
