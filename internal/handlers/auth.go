package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/metrics"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/types"
)

// AuthHandler provides the login, logout and session endpoints.
type AuthHandler struct {
	userService  *services.UserService
	codec        *auth.TokenCodec
	transport    auth.Transport
	observeLogin func(outcome string)
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	codec *auth.TokenCodec,
	transport auth.Transport,
	observeLogin func(outcome string),
) *AuthHandler {
	if observeLogin == nil {
		observeLogin = func(string) {}
	}
	return &AuthHandler{
		userService:  userService,
		codec:        codec,
		transport:    transport,
		observeLogin: observeLogin,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// Login verifies credentials, sets the session cookie and returns the
// token for header-based clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.observeLogin(metrics.LoginMissingCredentials)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingCredentials):
			h.observeLogin(metrics.LoginMissingCredentials)
			writeError(w, http.StatusBadRequest, "missing credentials")
		case errors.Is(err, services.ErrInvalidCredentials):
			h.observeLogin(metrics.LoginInvalidCredentials)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.observeLogin(metrics.LoginError)
			log.Printf("login failed err=%v", err)
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	token, err := h.codec.Issue(user)
	if err != nil {
		h.observeLogin(metrics.LoginError)
		log.Printf("issue token failed user_id=%s err=%v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	h.transport.Attach(w, r, token)
	h.observeLogin(metrics.LoginSuccess)
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Logout clears the session cookie. Tokens are not revocable, so a copied
// bearer token stays valid until it expires or the account is deactivated.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.transport.Clear(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string         `json:"token"`
	User  types.AuthUser `json:"user"`
}
