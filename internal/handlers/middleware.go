package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/types"
)

// Authentication results passed to the RequireAuth observer.
const (
	AuthResultOK              = "ok"
	AuthResultUnauthenticated = "unauthenticated"
	AuthResultError           = "error"
)

// RequireAuth resolves the request's user against the live store and puts
// it in the request context. Every "no trusted user" case answers 401.
func RequireAuth(authenticator *auth.Authenticator, observe func(result string)) func(http.Handler) http.Handler {
	if observe == nil {
		observe = func(string) {}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Resolve(r)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					observe(AuthResultUnauthenticated)
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				observe(AuthResultError)
				log.Printf("authenticate request failed path=%s err=%v", r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "failed to authenticate")
				return
			}

			observe(AuthResultOK)
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// RequireRole rejects authenticated users whose role is not listed. It must
// run after RequireAuth.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !auth.HasPermission(user.Role, roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (types.AuthUser, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.AuthUser{}, false
	}
	return user, true
}
