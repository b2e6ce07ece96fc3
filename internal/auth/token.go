package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/schoolhub/apiserver/types"
)

// SessionTTL is the fixed lifetime of a session token. Tokens are never
// refreshed.
const SessionTTL = 24 * time.Hour

// sessionClaims is the signed payload: the AuthUser projection plus the
// registered iat/exp/sub claims.
type sessionClaims struct {
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Role      string  `json:"role"`
	SchoolID  string  `json:"school_id"`
	BranchID  *string `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 session tokens with a secret fixed at
// construction. It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec constructs a codec for the given signing secret.
func NewTokenCodec(secret string, opts ...TokenOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	codec := &TokenCodec{
		secret: []byte(secret),
		ttl:    SessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

// TTL returns the lifetime given to issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token carrying user, valid for TTL from now.
func (c *TokenCodec) Issue(user types.AuthUser) (string, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", errors.New("user id is required")
	}
	now := c.now()
	claims := sessionClaims{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		SchoolID:  user.SchoolID,
		BranchID:  user.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks the token's signature and expiry and returns the projection
// it carries. Every failure yields false; the cause is not reported.
func (c *TokenCodec) Verify(tokenString string) (types.AuthUser, bool) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return types.AuthUser{}, false
	}

	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil || !token.Valid {
		return types.AuthUser{}, false
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return types.AuthUser{}, false
	}
	role, err := types.ParseRole(claims.Role)
	if err != nil {
		return types.AuthUser{}, false
	}

	return types.AuthUser{
		ID:        claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Role:      role,
		SchoolID:  claims.SchoolID,
		BranchID:  claims.BranchID,
	}, true
}
