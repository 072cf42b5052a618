// Package auth implements the collector's auth guard: bearer-token
// extraction and JWT validation on the WebSocket upgrade, plus enrollment
// secret verification and token issuance for the bootstrap endpoint.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of a collector-issued bearer token.
// Required claims per the wire contract: sub, exp, iat.
type Claims struct {
	jwt.RegisteredClaims
}

// Mode names an auth guard activation mode.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeToken  Mode = "token"
	ModeHybrid Mode = "hybrid"
)

// Guard validates bearer tokens on the /ingest upgrade.
// mTLS/hybrid transport-layer enforcement is the listener's TLS
// configuration's responsibility and is not modeled here; Guard only ever
// checks the JWT.
type Guard struct {
	mode   Mode
	secret []byte
}

// NewGuard constructs a Guard. secret may be empty when mode is
// [ModeNone]; constructing with an empty secret in token/hybrid mode is
// allowed (the misconfiguration surfaces as a 500 per-request rather
// than failing to start).
func NewGuard(mode Mode, secret string) *Guard {
	return &Guard{mode: mode, secret: []byte(secret)}
}

// ErrNoToken indicates the request carried no bearer token.
var ErrNoToken = errors.New("auth: no bearer token presented")

// ErrNoSecret indicates the guard is in token/hybrid mode with no secret
// configured — a server misconfiguration, not a client auth failure.
var ErrNoSecret = errors.New("auth: token mode enabled but no secret configured")

// Authenticate extracts and validates the bearer token on r. It returns
// the authenticated subject (the claim's "sub") on success. When the
// guard's mode is [ModeNone], it always succeeds with an empty subject.
func (g *Guard) Authenticate(r *http.Request) (subject string, err error) {
	if g.mode == ModeNone {
		return "", nil
	}
	if len(g.secret) == 0 {
		return "", ErrNoSecret
	}

	token := extractToken(r)
	if token == "" {
		return "", ErrNoToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return g.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return "", errors.New("auth: invalid or expired token")
	}
	return claims.Subject, nil
}

// extractToken reads the bearer token from the Authorization header first,
// falling back to the ?token= query parameter. Empty/whitespace tokens
// count as absent.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(h, prefix) {
			if t := strings.TrimSpace(h[len(prefix):]); t != "" {
				return t
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// IssueToken mints an HS256 bearer token for subject, valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (token string, expiresAt int64, err error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", 0, err
	}
	return signed, exp.Unix(), nil
}
