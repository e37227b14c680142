// Package auth implements bearer token authentication for the HTTP API.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/config"
)

// ErrUnauthorized is returned when a bearer token is missing or invalid.
var ErrUnauthorized = errors.New("could not validate credentials")

// Principal is the authenticated caller.
type Principal struct {
	RefNo   string        `json:"refNo,omitempty"`
	Subject string        `json:"sub,omitempty"`
	Claims  jwt.MapClaims `json:"-"`
}

type principalKey struct{}

// FromContext returns the principal stored by the middleware, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticator validates bearer tokens against a static token and a JWT secret.
type Authenticator struct {
	staticToken string
	staticRefNo string
	secret      []byte
	algorithm   string
	logger      *zap.Logger
}

// New returns an Authenticator for cfg. The algorithm must be one of HS256, HS384 or HS512.
func New(cfg config.AuthConfig, logger *zap.Logger) (*Authenticator, error) {
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	switch alg {
	case jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg():
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm %q", cfg.Algorithm)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		staticToken: cfg.StaticToken,
		staticRefNo: cfg.StaticRefNo,
		secret:      []byte(cfg.JWTSecret),
		algorithm:   alg,
		logger:      logger,
	}, nil
}

// Enabled reports whether any credential is configured.
func (a *Authenticator) Enabled() bool {
	return a.staticToken != "" || len(a.secret) > 0
}

// Authenticate resolves token to a principal. The static token is checked
// first; anything else must be a JWT signed with the configured secret.
func (a *Authenticator) Authenticate(token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	if a.staticToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.staticToken)) == 1 {
		return &Principal{RefNo: a.staticRefNo}, nil
	}
	if len(a.secret) == 0 {
		return nil, ErrUnauthorized
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{a.algorithm}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	p := &Principal{Claims: claims}
	p.Subject, _ = claims.GetSubject()
	if ref, ok := claims["refNo"].(string); ok {
		p.RefNo = ref
	}
	return p, nil
}

// Middleware rejects requests without a valid bearer token. It passes every
// request through when no credential is configured.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		p, err := a.Authenticate(BearerToken(r))
		if err != nil {
			a.logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Could not validate credentials"})
}
