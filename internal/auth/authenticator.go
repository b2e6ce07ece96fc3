package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
)

// ErrUnauthenticated covers every "no trusted user" outcome: no token, a
// bad or expired token, and a token whose account is gone or inactive.
var ErrUnauthenticated = errors.New("unauthenticated")

// ActiveUserFinder loads a user by id, returning store.ErrNotFound unless
// the account exists and is active.
type ActiveUserFinder interface {
	FindActiveByID(ctx context.Context, id string) (types.User, error)
}

// Authenticator resolves a request to a user freshly loaded from the store.
type Authenticator struct {
	extractor TokenExtractor
	codec     *TokenCodec
	users     ActiveUserFinder
}

func NewAuthenticator(extractor TokenExtractor, codec *TokenCodec, users ActiveUserFinder) *Authenticator {
	return &Authenticator{
		extractor: extractor,
		codec:     codec,
		users:     users,
	}
}

// Resolve returns the live projection of the request's user. Role, branch
// and active status come from the store, not from the token's claims.
func (a *Authenticator) Resolve(r *http.Request) (types.AuthUser, error) {
	token, ok := a.extractor.Extract(r)
	if !ok {
		return types.AuthUser{}, ErrUnauthenticated
	}

	claimed, ok := a.codec.Verify(token)
	if !ok {
		return types.AuthUser{}, ErrUnauthenticated
	}

	user, err := a.users.FindActiveByID(r.Context(), claimed.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AuthUser{}, ErrUnauthenticated
		}
		return types.AuthUser{}, err
	}
	return user.AuthUser(), nil
}

type contextKey string

const contextUserKey contextKey = "auth_user"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user types.AuthUser) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// UserFromContext returns the authenticated user stored by Middleware.
func UserFromContext(ctx context.Context) (types.AuthUser, bool) {
	user, ok := ctx.Value(contextUserKey).(types.AuthUser)
	return user, ok
}
