package auth

import (
	"net/http"
	"strings"
	"time"
)

// TokenExtractor pulls a candidate session token out of a request.
type TokenExtractor interface {
	Extract(r *http.Request) (string, bool)
}

// CookieExtractor reads the token from the named cookie.
type CookieExtractor struct {
	Name string
}

func (e CookieExtractor) Extract(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(e.Name)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(cookie.Value)
	return token, token != ""
}

// BearerExtractor reads the token from an "Authorization: Bearer" header.
type BearerExtractor struct{}

func (BearerExtractor) Extract(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Extractors tries each extractor in order and stops at the first hit.
type Extractors []TokenExtractor

func (es Extractors) Extract(r *http.Request) (string, bool) {
	for _, e := range es {
		if token, ok := e.Extract(r); ok {
			return token, true
		}
	}
	return "", false
}

// Transport moves session tokens between the server and the client.
type Transport struct {
	CookieName string
	// ForceSecure marks cookies Secure even on plain-HTTP requests, for
	// deployments behind a TLS-terminating proxy.
	ForceSecure bool
	MaxAge      time.Duration
}

// NewTransport constructs a Transport whose cookie lives as long as a token.
func NewTransport(cookieName string, forceSecure bool) Transport {
	return Transport{
		CookieName:  cookieName,
		ForceSecure: forceSecure,
		MaxAge:      SessionTTL,
	}
}

// Extractor returns the lookup order: cookie first, bearer header second.
func (t Transport) Extractor() Extractors {
	return Extractors{
		CookieExtractor{Name: t.CookieName},
		BearerExtractor{},
	}
}

// Attach sets the session cookie carrying token on the response.
func (t Transport) Attach(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(t.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (t Transport) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (t Transport) secure(r *http.Request) bool {
	return t.ForceSecure || (r != nil && r.TLS != nil)
}
